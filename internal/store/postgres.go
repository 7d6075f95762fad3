package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"grievanceos/api/internal/rbac"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Organizations

const organizationColumns = `id, name, slug, created_at`

func scanOrganization(row rowScanner) (Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	return o, err
}

func (s *PostgresStore) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug=$1`, slug))
}

func (s *PostgresStore) GetOrganizationByID(ctx context.Context, id int64) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id=$1`, id))
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug=$1)`, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// CreateOrganizationWithAdmin inserts the organization and its first admin in one transaction.
func (s *PostgresStore) CreateOrganizationWithAdmin(ctx context.Context, org Organization, admin Account) (Organization, Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Organization{}, Account{}, fmt.Errorf("begin setup tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanOrganization(tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug)
		VALUES ($1, $2)
		RETURNING `+organizationColumns, org.Name, org.Slug))
	if err != nil {
		return Organization{}, Account{}, fmt.Errorf("insert organization: %w", err)
	}

	admin.OrganizationID = created.ID
	admin.Role = rbac.RoleOrgAdmin
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO organization_admins (organization_id, email, password_hash, full_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, admin.OrganizationID, admin.Email, admin.PasswordHash, admin.FullName).Scan(&admin.ID, &admin.CreatedAt); err != nil {
		return Organization{}, Account{}, fmt.Errorf("insert organization admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Organization{}, Account{}, fmt.Errorf("commit setup tx: %w", err)
	}
	return created, admin, nil
}

// Accounts

// FindAccountByEmail looks the email up in organization admins, then
// department admins, then users, and returns the first match joined with its
// organization slug. It returns sql.ErrNoRows when no table has the email.
func (s *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (Account, string, error) {
	lookups := []struct {
		role  rbac.Role
		query string
	}{
		{rbac.RoleOrgAdmin, `
			SELECT a.id, a.organization_id, NULL::bigint, a.email, a.password_hash, a.full_name, a.created_at, o.slug
			FROM organization_admins a JOIN organizations o ON o.id = a.organization_id
			WHERE lower(a.email) = lower($1)`},
		{rbac.RoleDeptAdmin, `
			SELECT a.id, a.organization_id, a.department_id, a.email, a.password_hash, a.full_name, a.created_at, o.slug
			FROM department_admins a JOIN organizations o ON o.id = a.organization_id
			WHERE lower(a.email) = lower($1)`},
		{rbac.RoleUser, `
			SELECT a.id, a.organization_id, NULL::bigint, a.email, a.password_hash, a.full_name, a.created_at, o.slug
			FROM users a JOIN organizations o ON o.id = a.organization_id
			WHERE lower(a.email) = lower($1)`},
	}

	for _, lookup := range lookups {
		var (
			account Account
			deptID  sql.NullInt64
			slug    string
		)
		err := s.db.QueryRowContext(ctx, lookup.query, email).Scan(
			&account.ID, &account.OrganizationID, &deptID, &account.Email,
			&account.PasswordHash, &account.FullName, &account.CreatedAt, &slug,
		)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return Account{}, "", fmt.Errorf("lookup %s account: %w", lookup.role, err)
		}
		account.Role = lookup.role
		account.DepartmentID = nullInt64Ptr(deptID)
		return account, slug, nil
	}
	return Account{}, "", sql.ErrNoRows
}

// EmailInUse reports whether any of the three identity tables holds email.
func (s *PostgresStore) EmailInUse(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM organization_admins WHERE lower(email) = lower($1))
			OR EXISTS(SELECT 1 FROM department_admins WHERE lower(email) = lower($1))
			OR EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))
	`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, account Account) (Account, error) {
	account.Role = rbac.RoleUser
	account.DepartmentID = nil
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (organization_id, email, password_hash, full_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, account.OrganizationID, account.Email, account.PasswordHash, account.FullName).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return Account{}, fmt.Errorf("insert user: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) CreateDeptAdmin(ctx context.Context, account Account) (Account, error) {
	if account.DepartmentID == nil {
		return Account{}, errors.New("department admin requires a department")
	}
	account.Role = rbac.RoleDeptAdmin
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO department_admins (organization_id, department_id, email, password_hash, full_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, account.OrganizationID, *account.DepartmentID, account.Email, account.PasswordHash, account.FullName).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return Account{}, fmt.Errorf("insert department admin: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) ListDeptAdmins(ctx context.Context, orgID int64) ([]DeptAdmin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.full_name, a.email, a.department_id, d.name, a.created_at
		FROM department_admins a
		JOIN departments d ON d.id = a.department_id
		WHERE a.organization_id = $1
		ORDER BY a.created_at DESC, a.id DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list department admins: %w", err)
	}
	defer rows.Close()

	admins := make([]DeptAdmin, 0)
	for rows.Next() {
		var a DeptAdmin
		if err := rows.Scan(&a.ID, &a.FullName, &a.Email, &a.DepartmentID, &a.DepartmentName, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan department admin: %w", err)
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

func (s *PostgresStore) DeptAdminInOrganization(ctx context.Context, orgID, id int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM department_admins WHERE organization_id=$1 AND id=$2)`, orgID, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check department admin: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) DeleteDeptAdmin(ctx context.Context, orgID, id int64) error {
	return execAffectingOne(ctx, s.db, `DELETE FROM department_admins WHERE organization_id=$1 AND id=$2`, orgID, id)
}

// Departments

const departmentColumns = `id, organization_id, name, description, created_at`

func scanDepartment(row rowScanner) (Department, error) {
	var (
		d    Department
		desc sql.NullString
	)
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &desc, &d.CreatedAt); err != nil {
		return Department{}, err
	}
	d.Description = nullStringPtr(desc)
	return d, nil
}

func (s *PostgresStore) ListDepartments(ctx context.Context, orgID int64) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE organization_id=$1 ORDER BY name, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	departments := make([]Department, 0)
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

func (s *PostgresStore) GetDepartment(ctx context.Context, orgID, id int64) (Department, error) {
	return scanDepartment(s.db.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE organization_id=$1 AND id=$2`, orgID, id))
}

func (s *PostgresStore) CreateDepartment(ctx context.Context, d Department) (Department, error) {
	created, err := scanDepartment(s.db.QueryRowContext(ctx, `
		INSERT INTO departments (organization_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING `+departmentColumns, d.OrganizationID, d.Name, d.Description))
	if err != nil {
		return Department{}, fmt.Errorf("insert department: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) DeleteDepartment(ctx context.Context, orgID, id int64) error {
	return execAffectingOne(ctx, s.db, `DELETE FROM departments WHERE organization_id=$1 AND id=$2`, orgID, id)
}

// Complaints

const complaintColumns = `id, organization_id, department_id, user_id, title, description, status, priority, assigned_to, file_url, created_at, updated_at`

func scanComplaint(row rowScanner) (Complaint, error) {
	var (
		c        Complaint
		deptID   sql.NullInt64
		assigned sql.NullInt64
		fileURL  sql.NullString
	)
	if err := row.Scan(&c.ID, &c.OrganizationID, &deptID, &c.UserID, &c.Title, &c.Description,
		&c.Status, &c.Priority, &assigned, &fileURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Complaint{}, err
	}
	c.DepartmentID = nullInt64Ptr(deptID)
	c.AssignedTo = nullInt64Ptr(assigned)
	c.FileURL = nullStringPtr(fileURL)
	return c, nil
}

// ScopeClause renders scope as a WHERE fragment over columns of alias,
// numbering placeholders from next. It returns the fragment, its arguments
// and the next free placeholder number.
func ScopeClause(scope ComplaintScope, alias string, next int) (string, []any, int) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	clauses := []string{fmt.Sprintf("%s = $%d", col("organization_id"), next)}
	args := []any{scope.OrganizationID}
	next++
	if scope.UserID != nil {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col("user_id"), next))
		args = append(args, *scope.UserID)
		next++
	}
	if scope.DepartmentID != nil {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col("department_id"), next))
		args = append(args, *scope.DepartmentID)
		next++
	}
	return strings.Join(clauses, " AND "), args, next
}

// ListComplaints returns complaints in scope, newest first. limit <= 0 means no limit.
func (s *PostgresStore) ListComplaints(ctx context.Context, scope ComplaintScope, limit int) ([]Complaint, error) {
	where, args, _ := ScopeClause(scope, "", 1)
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	complaints := make([]Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		complaints = append(complaints, c)
	}
	return complaints, rows.Err()
}

func (s *PostgresStore) GetComplaint(ctx context.Context, scope ComplaintScope, id int64) (Complaint, error) {
	where, args, next := ScopeClause(scope, "", 1)
	args = append(args, id)
	return scanComplaint(s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM complaints WHERE %s AND id = $%d`, complaintColumns, where, next), args...))
}

func (s *PostgresStore) CreateComplaint(ctx context.Context, c Complaint) (Complaint, error) {
	if c.Status == "" {
		c.Status = StatusPending
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	created, err := scanComplaint(s.db.QueryRowContext(ctx, `
		INSERT INTO complaints (organization_id, department_id, user_id, title, description, status, priority, file_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+complaintColumns,
		c.OrganizationID, c.DepartmentID, c.UserID, c.Title, c.Description, c.Status, c.Priority, c.FileURL))
	if err != nil {
		return Complaint{}, fmt.Errorf("insert complaint: %w", err)
	}
	return created, nil
}

// UpdateComplaint applies update to the complaint if it is in scope and
// returns the resulting row. An empty update returns the row unchanged.
func (s *PostgresStore) UpdateComplaint(ctx context.Context, scope ComplaintScope, id int64, update ComplaintUpdate) (Complaint, error) {
	if update.Empty() {
		return s.GetComplaint(ctx, scope, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.SetDepartment {
		add("department_id", update.DepartmentID)
	}
	if update.SetAssignee {
		add("assigned_to", update.AssignedTo)
	}
	sets = append(sets, "updated_at = NOW()")

	where, scopeArgs, next := ScopeClause(scope, "", len(args)+1)
	args = append(args, scopeArgs...)
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE complaints SET %s WHERE %s AND id = $%d RETURNING %s`,
		strings.Join(sets, ", "), where, next, complaintColumns)
	return scanComplaint(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) CountComplaintsByStatus(ctx context.Context, scope ComplaintScope) (StatusCounts, error) {
	where, args, _ := ScopeClause(scope, "", 1)
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM complaints WHERE `+where+` GROUP BY status`, args...)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count complaints: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("scan complaint count: %w", err)
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusInProgress:
			counts.InProgress = n
		case StatusResolved:
			counts.Resolved = n
		case StatusClosed:
			counts.Closed = n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountOrganizationMembers(ctx context.Context, orgID int64) (OrgCounts, error) {
	var counts OrgCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM departments WHERE organization_id = $1),
			(SELECT count(*) FROM department_admins WHERE organization_id = $1),
			(SELECT count(*) FROM users WHERE organization_id = $1)
	`, orgID).Scan(&counts.Departments, &counts.DeptAdmins, &counts.Users)
	if err != nil {
		return OrgCounts{}, fmt.Errorf("count organization members: %w", err)
	}
	return counts, nil
}

// Responses

const responseColumns = `id, complaint_id, author_type, author_id, message, file_url, created_at`

func scanResponse(row rowScanner) (Response, error) {
	var (
		r       Response
		fileURL sql.NullString
	)
	if err := row.Scan(&r.ID, &r.ComplaintID, &r.AuthorType, &r.AuthorID, &r.Message, &fileURL, &r.CreatedAt); err != nil {
		return Response{}, err
	}
	r.FileURL = nullStringPtr(fileURL)
	return r, nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, complaintID int64) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+responseColumns+` FROM complaint_responses WHERE complaint_id=$1 ORDER BY created_at, id`, complaintID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses := make([]Response, 0)
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

func (s *PostgresStore) CreateResponse(ctx context.Context, r Response) (Response, error) {
	created, err := scanResponse(s.db.QueryRowContext(ctx, `
		INSERT INTO complaint_responses (complaint_id, author_type, author_id, message, file_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+responseColumns, r.ComplaintID, string(r.AuthorType), r.AuthorID, r.Message, r.FileURL))
	if err != nil {
		return Response{}, fmt.Errorf("insert response: %w", err)
	}
	return created, nil
}

// CountResponsesByComplaint returns the number of responses per complaint id.
// Ids without responses are absent from the map.
func (s *PostgresStore) CountResponsesByComplaint(ctx context.Context, complaintIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(complaintIDs))
	if len(complaintIDs) == 0 {
		return counts, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT complaint_id, count(*)
		FROM complaint_responses
		WHERE complaint_id = ANY($1)
		GROUP BY complaint_id
	`, complaintIDs)
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan response count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// Session revocation, used when Redis is not configured.

func (s *PostgresStore) RevokeSession(ctx context.Context, sid string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_sessions (sid, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (sid) DO NOTHING
	`, sid, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsSessionRevoked(ctx context.Context, sid string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE sid=$1 AND expires_at > NOW())`, sid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return exists, nil
}

// PurgeExpiredRevocations deletes revocation rows whose sessions have expired anyway.
func (s *PostgresStore) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge revoked sessions: %w", err)
	}
	return res.RowsAffected()
}

func execAffectingOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
