package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"shiftline/internal/domain"
)

const assignmentColumns = `id,activity_id,employee_id,assignment_date,status,actual_value,completion_percentage,evaluation_count,first_evaluated_at,last_evaluated_at,payment_status,included_in_payment_id,paid_in_payment_id,version,created_at,updated_at`

type AssignmentFilters struct {
	EmployeeIDs []string
	ActivityID  string
	From        *time.Time
	To          *time.Time
	Status      domain.Status
	Limit       int
	// Cursor continues after (CursorDate, CursorID) in ascending order.
	CursorDate string
	CursorID   string
}

func evaluationArgs(a domain.Assignment) (actual, pct any, count int, first, last any) {
	if ev := a.Evaluation; ev != nil {
		return ev.ActualValue, ev.CompletionPercentage, ev.Count, formatTS(ev.FirstEvaluatedAt), formatTS(ev.LastEvaluatedAt)
	}
	return nil, nil, 0, nil, nil
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	actual, pct, count, first, last := evaluationArgs(a)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO assignments(`+assignmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ActivityID, a.EmployeeID, domain.FormatDate(a.Date), string(a.Status()), actual, pct, count, first, last,
		string(a.PaymentStatus), nullableStringPtr(a.IncludedInPaymentID), nullableStringPtr(a.PaidInPaymentID),
		a.Version, formatTS(a.CreatedAt), formatTS(a.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateAssignment writes a when the stored version still equals a.Version and
// returns the new version. A stale version yields ErrConflict.
func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) (int64, error) {
	actual, pct, count, first, last := evaluationArgs(a)
	q := r.q(tx)
	res, err := q.ExecContext(ctx, `UPDATE assignments SET activity_id=?, employee_id=?, assignment_date=?, status=?, actual_value=?, completion_percentage=?, evaluation_count=?, first_evaluated_at=?, last_evaluated_at=?, payment_status=?, included_in_payment_id=?, paid_in_payment_id=?, version=version+1, updated_at=?
WHERE id=? AND version=?`,
		a.ActivityID, a.EmployeeID, domain.FormatDate(a.Date), string(a.Status()), actual, pct, count, first, last,
		string(a.PaymentStatus), nullableStringPtr(a.IncludedInPaymentID), nullableStringPtr(a.PaidInPaymentID),
		formatTS(a.UpdatedAt), a.ID, a.Version)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, r.missingOrConflict(ctx, q, a.ID)
	}
	return a.Version + 1, nil
}

// DeleteAssignment removes the row if its version is unchanged.
func (r Repo) DeleteAssignment(ctx context.Context, tx *sql.Tx, id string, version int64) error {
	q := r.q(tx)
	res, err := q.ExecContext(ctx, `DELETE FROM assignments WHERE id=? AND version=?`, id, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrConflict(ctx, q, id)
	}
	return nil
}

func (r Repo) missingOrConflict(ctx context.Context, q Querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM assignments WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

func (r Repo) GetAssignment(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	items, err := scanAssignments(rows)
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(items) == 0 {
		return domain.Assignment{}, ErrNotFound
	}
	return items[0], nil
}

// FindAssignment looks up the assignment for the unique scheduling tuple.
func (r Repo) FindAssignment(ctx context.Context, tx *sql.Tx, employeeID string, day time.Time, activityID string) (domain.Assignment, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE employee_id=? AND assignment_date=? AND activity_id=?`,
		employeeID, domain.FormatDate(day), activityID)
	if err != nil {
		return domain.Assignment{}, err
	}
	items, err := scanAssignments(rows)
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(items) == 0 {
		return domain.Assignment{}, ErrNotFound
	}
	return items[0], nil
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var clauses []string
	var args []any
	if len(f.EmployeeIDs) > 0 {
		clauses = append(clauses, "employee_id IN ("+placeholders(len(f.EmployeeIDs))+")")
		for _, id := range f.EmployeeIDs {
			args = append(args, id)
		}
	}
	if f.ActivityID != "" {
		clauses = append(clauses, "activity_id=?")
		args = append(args, f.ActivityID)
	}
	if f.From != nil {
		clauses = append(clauses, "assignment_date>=?")
		args = append(args, domain.FormatDate(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "assignment_date<=?")
		args = append(args, domain.FormatDate(*f.To))
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.CursorDate != "" && f.CursorID != "" {
		clauses = append(clauses, "(assignment_date > ? OR (assignment_date = ? AND id > ?))")
		args = append(args, f.CursorDate, f.CursorDate, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments ` + where + ` ORDER BY assignment_date, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// ListScheduledEmployees pages over employees holding at least one
// assignment in [from, to], ordered by employee id.
func (r Repo) ListScheduledEmployees(ctx context.Context, from, to time.Time, afterID string, limit int) ([]string, error) {
	args := []any{domain.FormatDate(from), domain.FormatDate(to)}
	query := `SELECT DISTINCT employee_id FROM assignments WHERE assignment_date>=? AND assignment_date<=?`
	if afterID != "" {
		query += ` AND employee_id>?`
		args = append(args, afterID)
	}
	query += ` ORDER BY employee_id LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		var date, status, payment, created, updated string
		var actual sql.NullFloat64
		var pct sql.NullInt64
		var count int
		var first, last, included, paid sql.NullString
		if err := rows.Scan(&a.ID, &a.ActivityID, &a.EmployeeID, &date, &status, &actual, &pct, &count, &first, &last,
			&payment, &included, &paid, &a.Version, &created, &updated); err != nil {
			return nil, err
		}
		var err error
		if a.Date, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
		if status == string(domain.StatusCompleted) {
			ev := domain.Evaluation{
				ActualValue:          actual.Float64,
				CompletionPercentage: pct.Int64,
				Count:                count,
			}
			if ev.FirstEvaluatedAt, err = parseTS(first.String); err != nil {
				return nil, err
			}
			if ev.LastEvaluatedAt, err = parseTS(last.String); err != nil {
				return nil, err
			}
			a.Evaluation = &ev
		}
		a.PaymentStatus = domain.PaymentStatus(payment)
		a.IncludedInPaymentID = stringPtr(included)
		a.PaidInPaymentID = stringPtr(paid)
		if a.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
