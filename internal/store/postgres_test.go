package store

import (
	"reflect"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

func TestScopeClause(t *testing.T) {
	cases := []struct {
		name     string
		scope    ComplaintScope
		alias    string
		next     int
		want     string
		wantArgs []any
		wantNext int
	}{
		{
			name:     "organization only",
			scope:    ComplaintScope{OrganizationID: 4},
			next:     1,
			want:     "organization_id = $1",
			wantArgs: []any{int64(4)},
			wantNext: 2,
		},
		{
			name:     "user scope",
			scope:    ComplaintScope{OrganizationID: 4, UserID: int64Ptr(9)},
			next:     1,
			want:     "organization_id = $1 AND user_id = $2",
			wantArgs: []any{int64(4), int64(9)},
			wantNext: 3,
		},
		{
			name:     "department scope with alias and offset",
			scope:    ComplaintScope{OrganizationID: 4, DepartmentID: int64Ptr(2)},
			alias:    "c",
			next:     3,
			want:     "c.organization_id = $3 AND c.department_id = $4",
			wantArgs: []any{int64(4), int64(2)},
			wantNext: 5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, args, next := ScopeClause(tc.scope, tc.alias, tc.next)
			if got != tc.want {
				t.Fatalf("clause = %q, want %q", got, tc.want)
			}
			if !reflect.DeepEqual(args, tc.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tc.wantArgs)
			}
			if next != tc.wantNext {
				t.Fatalf("next = %d, want %d", next, tc.wantNext)
			}
		})
	}
}

func TestComplaintUpdateEmpty(t *testing.T) {
	if !(ComplaintUpdate{}).Empty() {
		t.Fatal("zero update should be empty")
	}
	status := StatusResolved
	if (ComplaintUpdate{Status: &status}).Empty() {
		t.Fatal("status update should not be empty")
	}
	if (ComplaintUpdate{SetAssignee: true}).Empty() {
		t.Fatal("clearing the assignee should not be empty")
	}
}

func TestValidStatusAndPriority(t *testing.T) {
	for _, s := range []string{"pending", "in_progress", "resolved", "closed"} {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = false", s)
		}
	}
	for _, s := range []string{"", "open", "RESOLVED"} {
		if ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = true", s)
		}
	}
	for _, p := range []string{"low", "medium", "high"} {
		if !ValidPriority(p) {
			t.Fatalf("ValidPriority(%q) = false", p)
		}
	}
	if ValidPriority("urgent") {
		t.Fatal("ValidPriority(urgent) = true")
	}
}
