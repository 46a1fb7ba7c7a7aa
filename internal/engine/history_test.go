package engine_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"shiftline/internal/audit"
	"shiftline/internal/domain"
	"shiftline/internal/engine"
)

func TestHistoryRecordsAcceptedAndRejectedAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.criterion(t, "act-1", "2024-01-01", nil, 100)
	a := env.assign(t, "act-1", "emp-1", "2024-02-01")

	if _, err := env.Engine.Evaluate(env.Ctx, a.ID, 80, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetLock(env.Ctx, a.ID, "PAY-1", "", "payroll"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Evaluate(env.Ctx, a.ID, 90, "bob"); !errors.Is(err, engine.ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if err := env.Engine.DeleteAssignment(env.Ctx, a.ID, "bob"); !errors.Is(err, engine.ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}

	history, err := env.Engine.History(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		op      string
		outcome domain.Outcome
	}{
		{audit.OpAssignmentCreate, domain.OutcomeSuccess},
		{audit.OpAssignmentEvaluate, domain.OutcomeSuccess},
		{audit.OpPaymentLock, domain.OutcomeSuccess},
		{audit.OpAssignmentEvaluate, domain.OutcomeFailure},
		{audit.OpAssignmentDelete, domain.OutcomeFailure},
	}
	if len(history) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(history))
	}
	for i, w := range want {
		h := history[i]
		if h.Operation != w.op || h.Outcome != w.outcome {
			t.Fatalf("entry %d: expected %s/%s, got %s/%s", i, w.op, w.outcome, h.Operation, h.Outcome)
		}
		if i > 0 && h.TS.Before(history[i-1].TS) {
			t.Fatalf("entry %d timestamp went backwards", i)
		}
		if i > 0 && h.Seq <= history[i-1].Seq {
			t.Fatalf("entry %d out of order", i)
		}
	}
	failed := history[3]
	if !strings.Contains(failed.Error, "PAY-1") || failed.ActorID != "bob" {
		t.Fatalf("failure entry missing detail: %+v", failed)
	}
	var before map[string]any
	if err := json.Unmarshal(failed.Before, &before); err != nil {
		t.Fatalf("failure entry should snapshot the rejecting state: %v", err)
	}
	if before["included_in_payment_id"] != "PAY-1" {
		t.Fatalf("unexpected before snapshot %v", before)
	}
	var after map[string]any
	if err := json.Unmarshal(history[1].After, &after); err != nil {
		t.Fatal(err)
	}
	if after["status"] != "COMPLETED" || after["completion_percentage"] != float64(80) {
		t.Fatalf("unexpected after snapshot %v", after)
	}

	// Restartable: the same call returns the same sequence.
	again, err := env.Engine.History(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(history) || again[0].ID != history[0].ID {
		t.Fatal("history is not restartable")
	}
	page, err := env.Engine.HistoryAfter(env.Ctx, a.ID, history[1].Seq, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != history[2].ID {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestRejectedCreateIsAuditedUnderItsID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateAssignment(env.Ctx, engine.AssignmentCreateOptions{
		ID: "asg-x", ActivityID: "act-1", EmployeeID: "emp-1", Date: day(t, "2024-02-01"), ActorID: "planner",
	})
	var ee *engine.Error
	if !errors.As(err, &ee) || !errors.Is(err, engine.ErrNoActiveCriteria) {
		t.Fatalf("expected no active criteria, got %v", err)
	}
	if ee.EntityID != "asg-x" || ee.Op != audit.OpAssignmentCreate {
		t.Fatalf("error not annotated: %+v", ee)
	}
	history, err := env.Engine.History(env.Ctx, ee.EntityID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Outcome != domain.OutcomeFailure || history[0].ActorID != "planner" {
		t.Fatalf("unexpected history %+v", history)
	}
	if _, err := env.Engine.GetAssignment(env.Ctx, "asg-x"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("rejected create left a row behind: %v", err)
	}
}

func TestCriterionHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.criterion(t, "act-1", "2024-01-01", nil, 100)
	value := 150.0
	if _, err := env.Engine.UpdateCriterion(env.Ctx, engine.CriterionUpdateOptions{ID: c.ID, Value: &value, ActorID: "lead"}); err != nil {
		t.Fatal(err)
	}
	zero := 0.0
	if _, err := env.Engine.UpdateCriterion(env.Ctx, engine.CriterionUpdateOptions{ID: c.ID, Value: &zero, ActorID: "lead"}); err == nil {
		t.Fatal("expected rejection")
	}
	history, err := env.Engine.History(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[2].Outcome != domain.OutcomeFailure || history[2].Operation != audit.OpCriterionUpdate {
		t.Fatalf("unexpected last entry %+v", history[2])
	}
	if _, err := env.Engine.History(env.Ctx, ""); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
