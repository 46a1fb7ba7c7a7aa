// Package audit keeps the append-only record of every attempted mutation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"shiftline/internal/domain"
	"shiftline/internal/ids"
	"shiftline/internal/obs"
	"shiftline/internal/repo"
)

// Operation names recorded in audit_entries.operation.
const (
	OpActivityCreate     = "activity.create"
	OpCriterionCreate    = "criterion.create"
	OpCriterionUpdate    = "criterion.update"
	OpCriterionDelete    = "criterion.delete"
	OpAssignmentCreate   = "assignment.create"
	OpAssignmentUpdate   = "assignment.update"
	OpAssignmentDelete   = "assignment.delete"
	OpAssignmentEvaluate = "assignment.evaluate"
	OpAssignmentComplete = "assignment.complete"
	OpPaymentLock        = "payment.lock"
	OpPaymentUnlock      = "payment.unlock"
	OpPaymentCancel      = "payment.cancel"
	OpPaymentFinalize    = "payment.finalize"
)

// Entity kinds.
const (
	KindActivity   = "activity"
	KindCriterion  = "criterion"
	KindAssignment = "assignment"
)

// Entry is one attempted mutation before it is persisted.
type Entry struct {
	Operation  string
	EntityKind string
	EntityID   string
	ActorID    string
	Before     any
	After      any
	Err        error
}

type Recorder struct {
	Repo repo.Repo
	Now  func() time.Time

	clock *clock
}

// clock hands out non-decreasing timestamps so history ordered by sequence
// is also ordered by time.
type clock struct {
	mu   sync.Mutex
	last time.Time
}

func NewRecorder(r repo.Repo, now func() time.Time) Recorder {
	if now == nil {
		now = time.Now
	}
	return Recorder{Repo: r, Now: now, clock: &clock{}}
}

func (rec Recorder) stamp() time.Time {
	now := time.Now
	if rec.Now != nil {
		now = rec.Now
	}
	t := now().UTC()
	if rec.clock == nil {
		return t
	}
	rec.clock.mu.Lock()
	defer rec.clock.mu.Unlock()
	if t.Before(rec.clock.last) {
		t = rec.clock.last
	}
	rec.clock.last = t
	return t
}

func (rec Recorder) build(e Entry) (domain.AuditEntry, error) {
	ts := rec.stamp()
	out := domain.AuditEntry{
		ID:         ids.Sortable(ts),
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Operation:  e.Operation,
		ActorID:    e.ActorID,
		TS:         ts,
		Outcome:    domain.OutcomeSuccess,
	}
	if out.ActorID == "" {
		out.ActorID = "unknown"
	}
	if e.Err != nil {
		out.Outcome = domain.OutcomeFailure
		out.Error = e.Err.Error()
	}
	var err error
	if out.Before, err = snapshot(e.Before); err != nil {
		return out, err
	}
	if out.After, err = snapshot(e.After); err != nil {
		return out, err
	}
	return out, nil
}

// Append writes a successful entry inside the mutation's transaction so the
// entry commits or rolls back with the change it describes.
func (rec Recorder) Append(ctx context.Context, tx *sql.Tx, e Entry) (domain.AuditEntry, error) {
	if tx == nil {
		return domain.AuditEntry{}, errors.New("audit: append requires a transaction")
	}
	entry, err := rec.build(e)
	if err != nil {
		return entry, err
	}
	if entry.Seq, err = rec.Repo.AppendAudit(ctx, tx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Committed reports an appended entry to metrics once its tx has committed.
func (rec Recorder) Committed(entry domain.AuditEntry) {
	obs.ObserveOperation(entry.Operation, string(entry.Outcome))
}

// RecordFailure writes a FAILURE entry outside any transaction. It must be
// called after the failed attempt's transaction has been rolled back.
func (rec Recorder) RecordFailure(ctx context.Context, e Entry) (domain.AuditEntry, error) {
	if e.Err == nil {
		return domain.AuditEntry{}, errors.New("audit: failure entry without error")
	}
	entry, err := rec.build(e)
	if err != nil {
		return entry, err
	}
	if entry.Seq, err = rec.Repo.AppendAudit(ctx, nil, entry); err != nil {
		return entry, err
	}
	obs.ObserveOperation(entry.Operation, string(entry.Outcome))
	return entry, nil
}

// History returns every entry for the entity, oldest first. Calling it again
// restarts from the beginning.
func (rec Recorder) History(ctx context.Context, entityID string) ([]domain.AuditEntry, error) {
	return rec.Repo.AuditHistory(ctx, entityID, 0, 0)
}

// HistoryPage continues an entity history after the given sequence.
func (rec Recorder) HistoryPage(ctx context.Context, entityID string, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	return rec.Repo.AuditHistory(ctx, entityID, afterSeq, limit)
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal snapshot: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

// EntriesAfter is the global feed across entities, in store order.
func (rec Recorder) EntriesAfter(ctx context.Context, afterSeq int64, limit int, operations ...string) ([]domain.AuditEntry, error) {
	return rec.Repo.AuditAfter(ctx, afterSeq, limit, operations...)
}
