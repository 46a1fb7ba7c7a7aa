package repo

import (
	"context"
	"database/sql"
	"time"

	"shiftline/internal/domain"
)

const criterionColumns = `id,activity_id,unit_code,value,start_date,end_date,created_at,updated_at`

func (r Repo) InsertCriterion(ctx context.Context, tx *sql.Tx, c domain.Criterion) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO criteria(`+criterionColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.ActivityID, c.UnitCode, c.Value, domain.FormatDate(c.StartDate), nullableDate(c.EndDate),
		formatTS(c.CreatedAt), formatTS(c.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r Repo) UpdateCriterion(ctx context.Context, tx *sql.Tx, c domain.Criterion) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE criteria SET unit_code=?, value=?, start_date=?, end_date=?, updated_at=? WHERE id=?`,
		c.UnitCode, c.Value, domain.FormatDate(c.StartDate), nullableDate(c.EndDate), formatTS(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCriterion(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM criteria WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCriterion(ctx context.Context, tx *sql.Tx, id string) (domain.Criterion, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+criterionColumns+` FROM criteria WHERE id=?`, id)
	if err != nil {
		return domain.Criterion{}, err
	}
	items, err := scanCriteria(rows)
	if err != nil {
		return domain.Criterion{}, err
	}
	if len(items) == 0 {
		return domain.Criterion{}, ErrNotFound
	}
	return items[0], nil
}

// ListCriteria returns every criterion of an activity ordered by window start.
func (r Repo) ListCriteria(ctx context.Context, tx *sql.Tx, activityID string) ([]domain.Criterion, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+criterionColumns+` FROM criteria WHERE activity_id=? ORDER BY start_date, id`, activityID)
	if err != nil {
		return nil, err
	}
	return scanCriteria(rows)
}

// CriteriaOn returns the criteria whose window contains day. The write path
// keeps windows disjoint, so more than one row means the store was edited
// outside this package.
func (r Repo) CriteriaOn(ctx context.Context, tx *sql.Tx, activityID string, day time.Time) ([]domain.Criterion, error) {
	d := domain.FormatDate(day)
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+criterionColumns+` FROM criteria
WHERE activity_id=? AND start_date<=? AND (end_date IS NULL OR end_date>=?)
ORDER BY start_date DESC, id`, activityID, d, d)
	if err != nil {
		return nil, err
	}
	return scanCriteria(rows)
}

func scanCriteria(rows *sql.Rows) ([]domain.Criterion, error) {
	defer rows.Close()
	var res []domain.Criterion
	for rows.Next() {
		var c domain.Criterion
		var start, created, updated string
		var end sql.NullString
		if err := rows.Scan(&c.ID, &c.ActivityID, &c.UnitCode, &c.Value, &start, &end, &created, &updated); err != nil {
			return nil, err
		}
		var err error
		if c.StartDate, err = domain.ParseDate(start); err != nil {
			return nil, err
		}
		if c.EndDate, err = parseNullDate(end); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
