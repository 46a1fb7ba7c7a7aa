package engine

import (
	"context"
	"database/sql"
	"math"

	"shiftline/internal/audit"
	"shiftline/internal/domain"
)

// Evaluate records actual progress for an assignment against the criterion
// valid on the assignment's own date and marks it COMPLETED. Every call
// recomputes the percentage from actual and counts once.
func (e Engine) Evaluate(ctx context.Context, id string, actual float64, actorID string) (domain.Assignment, error) {
	return e.updateAssignment(ctx, audit.OpAssignmentEvaluate, id, actorID, func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
		if err := AssertReEvaluatable(a); err != nil {
			return a, err
		}
		if math.IsNaN(actual) || math.IsInf(actual, 0) || actual < 0 {
			return a, validationf("actual value must be a finite number >= 0, got %v", actual)
		}
		c, err := e.requireCriterion(ctx, tx, a.ActivityID, a.Date, ErrEvaluationBlocked)
		if err != nil {
			return a, err
		}
		if err := checkPercentage(actual, c.Value); err != nil {
			return a, err
		}
		return domain.Evaluate(a, actual, c.Value, e.now()), nil
	})
}

// MarkComplete evaluates the assignment at exactly the criterion's target.
func (e Engine) MarkComplete(ctx context.Context, id, actorID string) (domain.Assignment, error) {
	return e.updateAssignment(ctx, audit.OpAssignmentComplete, id, actorID, func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
		if err := AssertReEvaluatable(a); err != nil {
			return a, err
		}
		c, err := e.requireCriterion(ctx, tx, a.ActivityID, a.Date, ErrEvaluationBlocked)
		if err != nil {
			return a, err
		}
		if err := checkPercentage(c.Value, c.Value); err != nil {
			return a, err
		}
		return domain.Evaluate(a, c.Value, c.Value, e.now()), nil
	})
}

// checkPercentage rejects ratios whose rounded percentage overflows int64.
func checkPercentage(actual, target float64) error {
	if !domain.PercentageFits(actual, target) {
		return validationf("actual value %v against target %v gives a completion percentage out of range", actual, target)
	}
	return nil
}
