package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shiftline/internal/domain"
)

const auditColumns = `seq,id,entity_kind,entity_id,operation,actor_id,ts,before_json,after_json,outcome,error`

// AppendAudit inserts an entry and returns its store sequence.
func (r Repo) AppendAudit(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO audit_entries(id,entity_kind,entity_id,operation,actor_id,ts,before_json,after_json,outcome,error) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.EntityKind, e.EntityID, e.Operation, e.ActorID, formatTS(e.TS),
		nullableRaw(e.Before), nullableRaw(e.After), string(e.Outcome), nullableString(e.Error))
	if err != nil {
		return 0, fmt.Errorf("append audit entry: %w", err)
	}
	return res.LastInsertId()
}

// AuditHistory returns entries for one entity oldest-first, after the given
// sequence. A zero limit returns everything.
func (r Repo) AuditHistory(ctx context.Context, entityID string, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE entity_id=? AND seq>? ORDER BY seq ASC`
	args := []any{entityID, afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

// AuditAfter returns entries across all entities with seq greater than the
// cursor in ascending order, optionally filtered by operation.
func (r Repo) AuditAfter(ctx context.Context, afterSeq int64, limit int, operations ...string) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"seq>?"}
	args := []any{afterSeq}
	if len(operations) > 0 {
		clauses = append(clauses, "operation IN ("+placeholders(len(operations))+")")
		for _, op := range operations {
			args = append(args, op)
		}
	}
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAudit(rows)
}

// LatestAuditSeq returns the most recent audit sequence.
func (r Repo) LatestAuditSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM audit_entries`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func scanAudit(rows *sql.Rows) ([]domain.AuditEntry, error) {
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var ts, outcome string
		var before, after, errMsg sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.EntityKind, &e.EntityID, &e.Operation, &e.ActorID, &ts, &before, &after, &outcome, &errMsg); err != nil {
			return nil, err
		}
		var err error
		if e.TS, err = parseTS(ts); err != nil {
			return nil, err
		}
		if before.Valid {
			e.Before = []byte(before.String)
		}
		if after.Valid {
			e.After = []byte(after.String)
		}
		e.Outcome = domain.Outcome(outcome)
		e.Error = errMsg.String
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableRaw(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
