package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"shiftline/internal/audit"
	"shiftline/internal/config"
	"shiftline/internal/db"
	"shiftline/internal/domain"
	"shiftline/internal/migrate"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// conflictingCreate fails the first conflicts attempts with a concurrency
// conflict, then inserts the activity.
func conflictingCreate(e Engine, id string, conflicts int, calls *int) func(ctx context.Context, tx *sql.Tx) (change, error) {
	return func(ctx context.Context, tx *sql.Tx) (change, error) {
		*calls++
		if *calls <= conflicts {
			return change{}, newError(ErrConcurrencyConflict, "activity %s was modified concurrently", id)
		}
		a := domain.Activity{ID: id, Name: "Pruning", CreatedAt: e.now()}
		if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
			return change{}, fromRepo(err, "activity "+id)
		}
		return change{After: a}, nil
	}
}

func activityMutation(id string) mutation {
	return mutation{
		Op:       audit.OpActivityCreate,
		Kind:     audit.KindActivity,
		EntityID: id,
		ActorID:  "tester",
		LockKey:  "activity:" + id,
	}
}

func TestMutateRetriesConflicts(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.RetryAttempts = 3
	e := New(openTestDB(t), cfg)
	ctx := context.Background()

	calls := 0
	if err := e.mutate(ctx, activityMutation("act-r"), conflictingCreate(e, "act-r", 2, &calls)); err != nil {
		t.Fatalf("expected success on the last attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if _, err := e.GetActivity(ctx, "act-r"); err != nil {
		t.Fatalf("activity not stored: %v", err)
	}
	history, err := e.History(ctx, "act-r")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected one SUCCESS entry, got %+v", history)
	}
}

func TestMutateGivesUpAfterRetryAttempts(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.RetryAttempts = 3
	e := New(openTestDB(t), cfg)
	ctx := context.Background()

	calls := 0
	err := e.mutate(ctx, activityMutation("act-x"), conflictingCreate(e, "act-x", 10, &calls))
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if _, err := e.GetActivity(ctx, "act-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no activity, got %v", err)
	}
	history, err := e.History(ctx, "act-x")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Outcome != domain.OutcomeFailure {
		t.Fatalf("expected one FAILURE entry, got %+v", history)
	}
}

func TestMutateDoesNotRetryOtherErrors(t *testing.T) {
	e := New(openTestDB(t), config.Default())
	calls := 0
	err := e.mutate(context.Background(), activityMutation("act-v"), func(ctx context.Context, tx *sql.Tx) (change, error) {
		calls++
		return change{}, validationf("activity name is required")
	})
	if !errors.Is(err, ErrValidation) || calls != 1 {
		t.Fatalf("expected one validation attempt, got %d attempts and %v", calls, err)
	}
}

func TestPersistenceTimeoutFailsAndAudits(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	e := New(conn, config.Default())
	if _, err := e.CreateActivity(ctx, ActivityCreateOptions{ID: "act-1", Name: "Harvest", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	start, _ := domain.ParseDate("2024-01-01")
	if _, err := e.CreateCriterion(ctx, CriterionCreateOptions{ActivityID: "act-1", UnitCode: "KG", Value: 40, StartDate: start, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	date, _ := domain.ParseDate("2024-02-01")
	a, err := e.CreateAssignment(ctx, AssignmentCreateOptions{ActivityID: "act-1", EmployeeID: "emp-1", Date: date, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Engine.PersistenceTimeout.Duration = time.Nanosecond
	slow := New(conn, cfg)
	if _, err := slow.Evaluate(ctx, a.ID, 20, "tester"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected persistence timeout, got %v", err)
	}

	got, err := e.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Evaluation != nil || got.Version != a.Version {
		t.Fatalf("timed out evaluation was applied: %+v", got)
	}
	history, err := e.History(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected create then failed evaluate, got %+v", history)
	}
	if last := history[1]; last.Operation != audit.OpAssignmentEvaluate || last.Outcome != domain.OutcomeFailure {
		t.Fatalf("expected failed evaluate, got %s/%s", last.Operation, last.Outcome)
	}
}
