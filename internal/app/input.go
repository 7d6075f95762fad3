package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexibleID accepts an id sent as a JSON number or a numeric string. Null,
// an empty string and zero all mean "no id".
type flexibleID struct {
	Value *int64
}

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	f.Value = nil
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	} else {
		raw = string(data)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	if id < 0 {
		return fmt.Errorf("invalid id %d", id)
	}
	if id != 0 {
		f.Value = &id
	}
	return nil
}

// optionalID is a flexibleID that also records whether the field was present.
type optionalID struct {
	Set bool
	flexibleID
}

func (o *optionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.flexibleID.UnmarshalJSON(data)
}

// parseID parses a positive path or query id.
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// optionalQueryID parses an optional positive id query parameter.
func optionalQueryID(raw string) (*int64, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	id, ok := parseID(raw)
	if !ok {
		return nil, false
	}
	return &id, true
}
