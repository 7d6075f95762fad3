package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"grievanceos/api/internal/store"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// buildQuery renders the count and data statements for q. The first
// placeholder is the search text; the scope filters follow it.
func buildQuery(q Query) (countSQL, dataSQL string, args []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	where, scopeArgs, _ := store.ScopeClause(q.Scope, "c", 2)
	args = append([]any{q.Text}, scopeArgs...)

	from := fmt.Sprintf(`FROM complaints c WHERE c.fts @@ %s AND %s`, tsQuery, where)
	countSQL = "SELECT count(*) " + from
	dataSQL = fmt.Sprintf(`SELECT c.id, c.title,
			ts_headline('english', c.description, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			c.status, c.priority, c.department_id, c.created_at
		%s
		ORDER BY ts_rank(c.fts, %s) DESC, c.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, from, tsQuery, q.limit(), q.offset())
	return countSQL, dataSQL, args
}

// Search runs plainto_tsquery over complaint title and description inside the query scope.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	countSQL, dataSQL, args := buildQuery(q)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r      Result
			deptID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Status, &r.Priority, &deptID, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if deptID.Valid {
			r.DepartmentID = &deptID.Int64
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadRecords returns searchable complaint records for reindexing. An
// organizationID of zero loads every tenant.
func (p *PgFTS) LoadRecords(ctx context.Context, organizationID int64) ([]ComplaintRecord, error) {
	query := `
		SELECT id, organization_id, department_id, user_id, title, description, status, priority, created_at
		FROM complaints`
	var args []any
	if organizationID != 0 {
		query += ` WHERE organization_id = $1`
		args = append(args, organizationID)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load complaints: %w", err)
	}
	defer rows.Close()

	records := make([]ComplaintRecord, 0)
	for rows.Next() {
		var c store.Complaint
		var deptID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.OrganizationID, &deptID, &c.UserID, &c.Title, &c.Description, &c.Status, &c.Priority, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		if deptID.Valid {
			c.DepartmentID = &deptID.Int64
		}
		records = append(records, RecordFromComplaint(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaints: %w", err)
	}
	return records, nil
}
