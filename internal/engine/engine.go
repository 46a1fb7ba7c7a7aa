package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shiftline/internal/audit"
	"shiftline/internal/config"
	"shiftline/internal/obs"
	"shiftline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Recorder
	Config *config.Config
	Now    func() time.Time

	locks *keyLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Audit:  audit.NewRecorder(r, time.Now),
		Config: cfg,
		Now:    time.Now,
		locks:  newKeyLocks(),
	}
}

// WithClock returns a copy whose engine and audit timestamps come from now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Audit = audit.NewRecorder(e.Repo, now)
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) retryAttempts() int {
	if e.Config == nil || e.Config.Engine.RetryAttempts < 1 {
		return 1
	}
	return e.Config.Engine.RetryAttempts
}

func (e Engine) persistenceTimeout() time.Duration {
	if e.Config == nil || e.Config.Engine.PersistenceTimeout.Duration <= 0 {
		return 5 * time.Second
	}
	return e.Config.Engine.PersistenceTimeout.Duration
}

// mutation describes one audited write.
type mutation struct {
	Op       string
	Kind     string
	EntityID string
	ActorID  string
	// LockKey serializes mutations sharing it within this process.
	LockKey string
}

// change is what a mutation attempt observed and produced. Before is kept
// even when the attempt fails so the failure entry shows the state that
// rejected it.
type change struct {
	Before any
	After  any
}

// mutate runs fn in a transaction, appends the SUCCESS entry in that same
// transaction and commits. Conflicts are retried up to the configured
// attempts; any final error is recorded as a FAILURE entry after rollback
// and returned unchanged.
func (e Engine) mutate(ctx context.Context, m mutation, fn func(ctx context.Context, tx *sql.Tx) (change, error)) error {
	if e.locks != nil && m.LockKey != "" {
		unlock := e.locks.lock(m.LockKey)
		defer unlock()
	}
	attempts := e.retryAttempts()
	var (
		ch  change
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		ch, err = e.attempt(ctx, m, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt == attempts {
			break
		}
		obs.ObserveConflictRetry()
	}
	err = annotate(err, m.Op, m.EntityID)
	e.recordFailure(ctx, m, ch, err)
	return err
}

func (e Engine) attempt(ctx context.Context, m mutation, fn func(ctx context.Context, tx *sql.Tx) (change, error)) (change, error) {
	actx, cancel := context.WithTimeout(ctx, e.persistenceTimeout())
	defer cancel()
	tx, err := e.DB.BeginTx(actx, nil)
	if err != nil {
		return change{}, fromRepo(err, m.EntityID)
	}
	defer tx.Rollback()

	ch, err := fn(actx, tx)
	if err != nil {
		return ch, err
	}
	entry, err := e.Audit.Append(actx, tx, audit.Entry{
		Operation:  m.Op,
		EntityKind: m.Kind,
		EntityID:   m.EntityID,
		ActorID:    m.ActorID,
		Before:     ch.Before,
		After:      ch.After,
	})
	if err != nil {
		return ch, fromRepo(err, m.EntityID)
	}
	if err := tx.Commit(); err != nil {
		return ch, fromRepo(err, m.EntityID)
	}
	e.Audit.Committed(entry)
	return ch, nil
}

// failureAuditTimeout bounds the FAILURE entry write. It is separate from the
// attempt timeout, which may be what failed.
const failureAuditTimeout = 5 * time.Second

func (e Engine) recordFailure(ctx context.Context, m mutation, ch change, cause error) {
	// The caller's context may be what failed; the entry is written anyway.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureAuditTimeout)
	defer cancel()
	_, err := e.Audit.RecordFailure(actx, audit.Entry{
		Operation:  m.Op,
		EntityKind: m.Kind,
		EntityID:   m.EntityID,
		ActorID:    m.ActorID,
		Before:     ch.Before,
		After:      ch.After,
		Err:        cause,
	})
	if err != nil {
		obs.Error("audit failure entry not written", map[string]any{
			"operation": m.Op,
			"entity_id": m.EntityID,
			"cause":     cause,
			"error":     err,
		})
	}
}
