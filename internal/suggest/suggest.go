// Package suggest asks a generative model which department should handle a
// complaint, trying a fixed list of models in order.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PlaceholderAPIKey is the sample value shipped in example env files.
const PlaceholderAPIKey = "your-gemini-api-key-here"

const ReasonNoAPIKey = "no_api_key"

// Candidate is a department the caller offers for routing. The id may arrive
// as a JSON number or a numeric string.
type Candidate struct {
	ID    int64
	Name  string
	raw   string
	valid bool
}

func NewCandidate(id int64, name string) Candidate {
	return Candidate{ID: id, Name: name, raw: strconv.FormatInt(id, 10), valid: true}
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Name = wire.Name
	c.raw = ""
	c.valid = false
	c.ID = 0

	raw := bytes.TrimSpace(wire.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
	}
	c.raw = strings.TrimSpace(text)
	if f, err := strconv.ParseFloat(c.raw, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		c.ID = int64(f)
		c.valid = true
	}
	return nil
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	if !c.valid {
		return json.Marshal(struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}{c.raw, c.Name})
	}
	return json.Marshal(struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}{c.ID, c.Name})
}

func (c Candidate) label() string {
	if c.valid {
		return strconv.FormatInt(c.ID, 10)
	}
	return c.raw
}

// Result is the outcome of a suggestion. A nil DepartmentID means "no suggestion".
type Result struct {
	DepartmentID *int64
	Reason       string
}

// Options configure the model chain.
type Options struct {
	APIKey      string
	Models      []string
	CallTimeout time.Duration
	Budget      time.Duration
}

type Suggester struct {
	gen     Generator
	opts    Options
	metrics *Metrics
	logger  *slog.Logger
}

func NewSuggester(gen Generator, opts Options, metrics *Metrics, logger *slog.Logger) *Suggester {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 8 * time.Second
	}
	if opts.Budget <= 0 {
		opts.Budget = 25 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{
		gen:     gen,
		opts:    opts,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "suggest")),
	}
}

// KeyConfigured reports whether key looks like a real API key.
func KeyConfigured(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && key != PlaceholderAPIKey
}

// Suggest picks a department for description from departments. It never
// fails: every error path yields a Result without a department.
func (s *Suggester) Suggest(ctx context.Context, description string, departments []Candidate) Result {
	if strings.TrimSpace(description) == "" || len(departments) == 0 {
		s.metrics.result("invalid_input")
		return Result{}
	}
	if !KeyConfigured(s.opts.APIKey) {
		s.logger.Info("no valid gemini api key configured")
		s.metrics.result(ReasonNoAPIKey)
		return Result{Reason: ReasonNoAPIKey}
	}

	text := s.ask(ctx, BuildPrompt(description, departments))
	id := Interpret(text, departments)
	switch {
	case text == "":
		s.metrics.result("exhausted")
	case id == nil:
		s.logger.Info("model answer did not match a department", slog.String("answer", text))
		s.metrics.result("no_match")
	default:
		s.metrics.result("suggested")
	}
	return Result{DepartmentID: id}
}

// ask walks the model list until one returns non-empty text.
func (s *Suggester) ask(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Budget)
	defer cancel()

	for _, model := range s.opts.Models {
		if ctx.Err() != nil {
			s.logger.Warn("suggestion budget exhausted", slog.String("model", model))
			return ""
		}

		callCtx, callCancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		text, err := s.gen.Generate(callCtx, model, prompt)
		callCancel()

		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr) && statusErr.RateLimited():
			s.logger.Info("model rate limited, trying next", slog.String("model", model))
			s.metrics.attempt(model, "rate_limited")
		case errors.As(err, &statusErr):
			s.logger.Info("model error, trying next", slog.String("model", model), slog.Int("status", statusErr.StatusCode))
			s.metrics.attempt(model, "http_error")
		case err != nil:
			s.logger.Info("model call failed, trying next", slog.String("model", model), slog.String("error", err.Error()))
			s.metrics.attempt(model, "call_error")
		case strings.TrimSpace(text) == "":
			s.metrics.attempt(model, "empty")
		default:
			s.metrics.attempt(model, "answered")
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// BuildPrompt renders the routing instruction for description and departments.
func BuildPrompt(description string, departments []Candidate) string {
	lines := make([]string, 0, len(departments))
	for _, d := range departments {
		lines = append(lines, fmt.Sprintf("%s: %s", d.label(), d.Name))
	}
	return fmt.Sprintf(`You are a complaint routing system. Given a complaint, pick the single best department from the list.

DEPARTMENTS:
%s

COMPLAINT:
"%s"

Reply with ONLY the department ID number. Nothing else. No punctuation, no explanation. Just the number. If no department fits, reply: none`,
		strings.Join(lines, "\n"), description)
}

var firstNumber = regexp.MustCompile(`\d+`)

// Interpret turns a model answer into a department id. The word "none"
// anywhere in the answer wins over any digits in it.
func Interpret(text string, departments []Candidate) *int64 {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(strings.ToLower(text), "none") {
		return nil
	}
	match := firstNumber.FindString(text)
	if match == "" {
		return nil
	}
	id, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return nil
	}
	for _, d := range departments {
		if d.valid && d.ID == id {
			return &id
		}
	}
	return nil
}
