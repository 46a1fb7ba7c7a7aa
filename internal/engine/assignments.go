package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"shiftline/internal/audit"
	"shiftline/internal/domain"
	"shiftline/internal/ids"
	"shiftline/internal/repo"
)

// AssignmentCreateOptions are parameters for scheduling an employee.
type AssignmentCreateOptions struct {
	ID         string
	ActivityID string
	EmployeeID string
	Date       time.Time
	ActorID    string
}

// AssignmentUpdateOptions move an assignment; nil fields are kept.
type AssignmentUpdateOptions struct {
	ID         string
	ActivityID *string
	EmployeeID *string
	Date       *time.Time
	ActorID    string
}

func assignmentKey(id string) string { return "assignment:" + id }

func slotKey(employeeID string, day time.Time, activityID string) string {
	return "slot:" + employeeID + "|" + domain.FormatDate(day) + "|" + activityID
}

// checkSlot validates a scheduling tuple the same way for create and update:
// the activity must exist, a criterion must apply on the date and no other
// assignment may hold the tuple. It returns the applicable criterion.
func (e Engine) checkSlot(ctx context.Context, tx *sql.Tx, selfID, activityID, employeeID string, day time.Time) (domain.Criterion, error) {
	if strings.TrimSpace(employeeID) == "" {
		return domain.Criterion{}, validationf("employee id is required")
	}
	if day.IsZero() {
		return domain.Criterion{}, validationf("assignment date is required")
	}
	if _, err := e.Repo.GetActivity(ctx, tx, activityID); err != nil {
		return domain.Criterion{}, fromRepo(err, "activity "+activityID)
	}
	c, err := e.requireCriterion(ctx, tx, activityID, day, ErrNoActiveCriteria)
	if err != nil {
		return c, err
	}
	existing, err := e.Repo.FindAssignment(ctx, tx, employeeID, day, activityID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return c, nil
	case err != nil:
		return c, err
	case existing.ID != selfID:
		return c, newError(ErrDuplicateAssignment, "employee %s already has activity %s on %s (assignment %s)",
			employeeID, activityID, domain.FormatDate(day), existing.ID)
	}
	return c, nil
}

func (e Engine) CreateAssignment(ctx context.Context, opts AssignmentCreateOptions) (domain.Assignment, error) {
	id := opts.ID
	if id == "" {
		id = ids.New()
	}
	day := domain.Day(opts.Date)
	var out domain.Assignment
	err := e.mutate(ctx, mutation{
		Op:       audit.OpAssignmentCreate,
		Kind:     audit.KindAssignment,
		EntityID: id,
		ActorID:  opts.ActorID,
		LockKey:  slotKey(opts.EmployeeID, day, opts.ActivityID),
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		now := e.now()
		a := domain.Assignment{
			ID:            id,
			ActivityID:    opts.ActivityID,
			EmployeeID:    strings.TrimSpace(opts.EmployeeID),
			Date:          day,
			PaymentStatus: domain.PaymentUnpaid,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := e.checkSlot(ctx, tx, a.ID, a.ActivityID, a.EmployeeID, a.Date); err != nil {
			return change{After: a}, err
		}
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return change{After: a}, fromRepo(err, "assignment "+id)
		}
		out = a
		return change{After: a}, nil
	})
	return out, err
}

// updateAssignment loads the assignment inside the mutation, applies fn and
// writes the result under the loaded version.
func (e Engine) updateAssignment(ctx context.Context, op, id, actorID string, fn func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error)) (domain.Assignment, error) {
	var out domain.Assignment
	err := e.mutate(ctx, mutation{
		Op:       op,
		Kind:     audit.KindAssignment,
		EntityID: id,
		ActorID:  actorID,
		LockKey:  assignmentKey(id),
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		before, err := e.Repo.GetAssignment(ctx, tx, id)
		if err != nil {
			return change{}, fromRepo(err, "assignment "+id)
		}
		after, err := fn(ctx, tx, before)
		if err != nil {
			return change{Before: before}, err
		}
		after.UpdatedAt = e.now()
		version, err := e.Repo.UpdateAssignment(ctx, tx, after)
		if err != nil {
			return change{Before: before, After: after}, fromRepo(err, "assignment "+id)
		}
		after.Version = version
		out = after
		return change{Before: before, After: after}, nil
	})
	return out, err
}

// UpdateAssignment moves an editable assignment to another activity,
// employee or date. The new tuple is validated like a create; an evaluated
// assignment keeps its actual value, scored against the criterion of the new
// date.
func (e Engine) UpdateAssignment(ctx context.Context, opts AssignmentUpdateOptions) (domain.Assignment, error) {
	return e.updateAssignment(ctx, audit.OpAssignmentUpdate, opts.ID, opts.ActorID, func(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
		if err := AssertEditable(a); err != nil {
			return a, err
		}
		if opts.ActivityID != nil {
			a.ActivityID = *opts.ActivityID
		}
		if opts.EmployeeID != nil {
			a.EmployeeID = strings.TrimSpace(*opts.EmployeeID)
		}
		if opts.Date != nil {
			a.Date = domain.Day(*opts.Date)
		}
		c, err := e.checkSlot(ctx, tx, a.ID, a.ActivityID, a.EmployeeID, a.Date)
		if err != nil {
			return a, err
		}
		if a.Evaluation != nil {
			if err := checkPercentage(a.Evaluation.ActualValue, c.Value); err != nil {
				return a, err
			}
		}
		return domain.Rescore(a, c.Value), nil
	})
}

func (e Engine) DeleteAssignment(ctx context.Context, id, actorID string) error {
	return e.mutate(ctx, mutation{
		Op:       audit.OpAssignmentDelete,
		Kind:     audit.KindAssignment,
		EntityID: id,
		ActorID:  actorID,
		LockKey:  assignmentKey(id),
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		before, err := e.Repo.GetAssignment(ctx, tx, id)
		if err != nil {
			return change{}, fromRepo(err, "assignment "+id)
		}
		ch := change{Before: before}
		if err := AssertEditable(before); err != nil {
			return ch, err
		}
		if err := e.Repo.DeleteAssignment(ctx, tx, id, before.Version); err != nil {
			return ch, fromRepo(err, "assignment "+id)
		}
		return ch, nil
	})
}

func (e Engine) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, nil, id)
	if err != nil {
		return a, fromRepo(err, "assignment "+id)
	}
	return a, nil
}

// ListByEmployee returns an employee's assignments ordered by date; from and
// to bound the range when set.
func (e Engine) ListByEmployee(ctx context.Context, employeeID string, from, to *time.Time) ([]domain.Assignment, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, validationf("employee id is required")
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, newError(ErrInvalidRange, "from %s is after to %s", domain.FormatDate(*from), domain.FormatDate(*to))
	}
	return e.Repo.ListAssignments(ctx, repo.AssignmentFilters{EmployeeIDs: []string{employeeID}, From: from, To: to})
}

func (e Engine) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Assignment, error) {
	if to.Before(from) {
		return nil, newError(ErrInvalidRange, "from %s is after to %s", domain.FormatDate(from), domain.FormatDate(to))
	}
	return e.Repo.ListAssignments(ctx, repo.AssignmentFilters{From: &from, To: &to})
}

func (e Engine) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Assignment, error) {
	if _, ok := domain.ParseStatus(string(status)); !ok {
		return nil, validationf("unknown status %q", status)
	}
	return e.Repo.ListAssignments(ctx, repo.AssignmentFilters{Status: status})
}
