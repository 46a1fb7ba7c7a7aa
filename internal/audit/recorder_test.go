package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftline/internal/db"
	"shiftline/internal/domain"
	"shiftline/internal/migrate"
	"shiftline/internal/repo"
)

func newRecorder(t *testing.T, now func() time.Time) Recorder {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRecorder(repo.Repo{DB: conn}, now)
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	readings := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	rec := newRecorder(t, func() time.Time {
		v := readings[i]
		i++
		return v
	})
	ctx := context.Background()
	for n := 0; n < len(readings); n++ {
		if _, err := rec.RecordFailure(ctx, Entry{Operation: OpAssignmentDelete, EntityKind: KindAssignment, EntityID: "asg-1", Err: errors.New("locked")}); err != nil {
			t.Fatal(err)
		}
	}
	history, err := rec.History(ctx, "asg-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if !history[1].TS.Equal(base) {
		t.Fatalf("clock went backwards: %v", history[1].TS)
	}
	if !history[2].TS.After(history[1].TS) {
		t.Fatalf("expected later timestamp, got %v", history[2].TS)
	}
	if history[0].ActorID != "unknown" || history[0].Outcome != domain.OutcomeFailure {
		t.Fatalf("unexpected entry %+v", history[0])
	}
}

func TestAppendCommitsWithTransaction(t *testing.T) {
	rec := newRecorder(t, nil)
	ctx := context.Background()

	if _, err := rec.Append(ctx, nil, Entry{Operation: OpActivityCreate, EntityID: "act-1"}); err == nil {
		t.Fatal("append without a transaction should fail")
	}
	if _, err := rec.RecordFailure(ctx, Entry{Operation: OpActivityCreate, EntityID: "act-1"}); err == nil {
		t.Fatal("failure entry without an error should fail")
	}

	tx, err := rec.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Append(ctx, tx, Entry{Operation: OpActivityCreate, EntityKind: KindActivity, EntityID: "act-1", ActorID: "tester", After: map[string]string{"name": "Harvest"}}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	history, err := rec.History(ctx, "act-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("rolled back entry is visible: %+v", history)
	}

	tx, err = rec.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	entry, err := rec.Append(ctx, tx, Entry{Operation: OpActivityCreate, EntityKind: KindActivity, EntityID: "act-1", ActorID: "tester", After: map[string]string{"name": "Harvest"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	rec.Committed(entry)
	feed, err := rec.EntriesAfter(ctx, 0, 10, OpActivityCreate)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].ID != entry.ID || string(feed[0].After) != `{"name":"Harvest"}` {
		t.Fatalf("unexpected feed %+v", feed)
	}
}

func TestAuditEntriesAreAppendOnly(t *testing.T) {
	rec := newRecorder(t, nil)
	ctx := context.Background()
	if _, err := rec.RecordFailure(ctx, Entry{Operation: OpPaymentLock, EntityID: "asg-1", Err: errors.New("locked")}); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Repo.DB.ExecContext(ctx, `UPDATE audit_entries SET outcome='SUCCESS'`); err == nil {
		t.Fatal("update of audit entry should be refused")
	}
	if _, err := rec.Repo.DB.ExecContext(ctx, `DELETE FROM audit_entries`); err == nil {
		t.Fatal("delete of audit entry should be refused")
	}
}
