package search

import (
	"context"
	"time"

	"grievanceos/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Snippet      string    `json:"snippet"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	DepartmentID *int64    `json:"department_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Query describes a search request. Scope is always applied.
type Query struct {
	Text   string
	Scope  store.ComplaintScope
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push complaints into a search index.
type Indexer interface {
	IndexComplaints(records []ComplaintRecord) error
}

// ComplaintRecord is the data we index for a complaint. The tenant and role
// scoping columns are indexed as filterable attributes.
type ComplaintRecord struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organizationId"`
	DepartmentID   *int64 `json:"departmentId"`
	UserID         int64  `json:"userId"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	Priority       string `json:"priority"`
	CreatedAt      int64  `json:"createdAt"`
}

// RecordFromComplaint converts a stored complaint into its index record.
func RecordFromComplaint(c store.Complaint) ComplaintRecord {
	return ComplaintRecord{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		DepartmentID:   c.DepartmentID,
		UserID:         c.UserID,
		Title:          c.Title,
		Description:    c.Description,
		Status:         c.Status,
		Priority:       c.Priority,
		CreatedAt:      c.CreatedAt.Unix(),
	}
}
