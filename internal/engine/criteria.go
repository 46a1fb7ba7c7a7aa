package engine

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"shiftline/internal/audit"
	"shiftline/internal/domain"
	"shiftline/internal/ids"
)

// CriterionCreateOptions are parameters for adding a completion criterion.
type CriterionCreateOptions struct {
	ID         string
	ActivityID string
	UnitCode   string
	Value      float64
	StartDate  time.Time
	EndDate    *time.Time
	ActorID    string
}

// CriterionUpdateOptions change a criterion; nil fields are kept.
type CriterionUpdateOptions struct {
	ID        string
	UnitCode  *string
	Value     *float64
	StartDate *time.Time
	EndDate   *time.Time
	// OpenEnded removes the end date.
	OpenEnded bool
	ActorID   string
}

func activityKey(id string) string { return "activity:" + id }

// ActiveCriterion returns the criterion whose window contains asOf. The
// boolean is false when no criterion applies on that date.
func (e Engine) ActiveCriterion(ctx context.Context, activityID string, asOf time.Time) (domain.Criterion, bool, error) {
	if _, err := e.GetActivity(ctx, activityID); err != nil {
		return domain.Criterion{}, false, err
	}
	return e.resolve(ctx, nil, activityID, asOf)
}

func (e Engine) resolve(ctx context.Context, tx *sql.Tx, activityID string, day time.Time) (domain.Criterion, bool, error) {
	items, err := e.Repo.CriteriaOn(ctx, tx, activityID, domain.Day(day))
	if err != nil {
		return domain.Criterion{}, false, fromRepo(err, "criteria of activity "+activityID)
	}
	switch len(items) {
	case 0:
		return domain.Criterion{}, false, nil
	case 1:
		return items[0], true, nil
	}
	return domain.Criterion{}, false, newError(ErrOverlap, "activity %s has %d criteria on %s", activityID, len(items), domain.FormatDate(day))
}

// requireCriterion resolves the criterion or fails with kind.
func (e Engine) requireCriterion(ctx context.Context, tx *sql.Tx, activityID string, day time.Time, kind error) (domain.Criterion, error) {
	c, ok, err := e.resolve(ctx, tx, activityID, day)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, newError(kind, "activity %s has no criterion active on %s", activityID, domain.FormatDate(day))
	}
	return c, nil
}

func (e Engine) ListCriteria(ctx context.Context, activityID string) ([]domain.Criterion, error) {
	if _, err := e.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return e.Repo.ListCriteria(ctx, nil, activityID)
}

func (e Engine) GetCriterion(ctx context.Context, id string) (domain.Criterion, error) {
	c, err := e.Repo.GetCriterion(ctx, nil, id)
	if err != nil {
		return c, fromRepo(err, "criterion "+id)
	}
	return c, nil
}

func validateCriterion(c domain.Criterion) error {
	if strings.TrimSpace(c.UnitCode) == "" {
		return validationf("unit code is required")
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) || c.Value <= 0 {
		return newError(ErrInvalidRange, "target value must be greater than zero, got %v", c.Value)
	}
	if c.StartDate.IsZero() {
		return validationf("start date is required")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return newError(ErrInvalidRange, "start date %s is after end date %s",
			domain.FormatDate(c.StartDate), domain.FormatDate(*c.EndDate))
	}
	return nil
}

// ensureNoOverlap scans the activity's other criteria inside tx. Callers
// hold the activity lock so the scan and the write are one step.
func (e Engine) ensureNoOverlap(ctx context.Context, tx *sql.Tx, c domain.Criterion) error {
	existing, err := e.Repo.ListCriteria(ctx, tx, c.ActivityID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == c.ID {
			continue
		}
		if domain.Overlaps(c.StartDate, c.EndDate, other.StartDate, other.EndDate) {
			return newError(ErrOverlap, "window %s overlaps criterion %s (%s)",
				windowString(c), other.ID, windowString(other))
		}
	}
	return nil
}

func windowString(c domain.Criterion) string {
	end := "open"
	if c.EndDate != nil {
		end = domain.FormatDate(*c.EndDate)
	}
	return domain.FormatDate(c.StartDate) + ".." + end
}

func normalizeWindow(c *domain.Criterion) {
	c.StartDate = domain.Day(c.StartDate)
	if c.EndDate != nil {
		end := domain.Day(*c.EndDate)
		c.EndDate = &end
	}
}

func (e Engine) CreateCriterion(ctx context.Context, opts CriterionCreateOptions) (domain.Criterion, error) {
	id := opts.ID
	if id == "" {
		id = ids.New()
	}
	var out domain.Criterion
	err := e.mutate(ctx, mutation{
		Op:       audit.OpCriterionCreate,
		Kind:     audit.KindCriterion,
		EntityID: id,
		ActorID:  opts.ActorID,
		LockKey:  activityKey(opts.ActivityID),
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		now := e.now()
		c := domain.Criterion{
			ID:         id,
			ActivityID: opts.ActivityID,
			UnitCode:   strings.TrimSpace(opts.UnitCode),
			Value:      opts.Value,
			StartDate:  opts.StartDate,
			EndDate:    opts.EndDate,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		normalizeWindow(&c)
		if err := validateCriterion(c); err != nil {
			return change{After: c}, err
		}
		if _, err := e.Repo.GetActivity(ctx, tx, c.ActivityID); err != nil {
			return change{After: c}, fromRepo(err, "activity "+c.ActivityID)
		}
		if err := e.ensureNoOverlap(ctx, tx, c); err != nil {
			return change{After: c}, err
		}
		if err := e.Repo.InsertCriterion(ctx, tx, c); err != nil {
			return change{After: c}, fromRepo(err, "criterion "+id)
		}
		out = c
		return change{After: c}, nil
	})
	return out, err
}

func (e Engine) UpdateCriterion(ctx context.Context, opts CriterionUpdateOptions) (domain.Criterion, error) {
	var out domain.Criterion
	err := e.mutate(ctx, mutation{
		Op:       audit.OpCriterionUpdate,
		Kind:     audit.KindCriterion,
		EntityID: opts.ID,
		ActorID:  opts.ActorID,
		LockKey:  e.criterionLockKey(ctx, opts.ID),
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		before, err := e.Repo.GetCriterion(ctx, tx, opts.ID)
		if err != nil {
			return change{}, fromRepo(err, "criterion "+opts.ID)
		}
		c := before
		if opts.UnitCode != nil {
			c.UnitCode = strings.TrimSpace(*opts.UnitCode)
		}
		if opts.Value != nil {
			c.Value = *opts.Value
		}
		if opts.StartDate != nil {
			c.StartDate = *opts.StartDate
		}
		if opts.OpenEnded {
			c.EndDate = nil
		} else if opts.EndDate != nil {
			c.EndDate = opts.EndDate
		}
		c.UpdatedAt = e.now()
		normalizeWindow(&c)
		ch := change{Before: before, After: c}
		if err := validateCriterion(c); err != nil {
			return ch, err
		}
		if err := e.ensureNoOverlap(ctx, tx, c); err != nil {
			return ch, err
		}
		if err := e.Repo.UpdateCriterion(ctx, tx, c); err != nil {
			return ch, fromRepo(err, "criterion "+c.ID)
		}
		out = c
		return ch, nil
	})
	return out, err
}

// DeleteCriterion removes a criterion. Assignments on dates it covered stay
// as they are; evaluating them is blocked until another criterion applies.
func (e Engine) DeleteCriterion(ctx context.Context, id, actorID string) error {
	return e.mutate(ctx, mutation{
		Op:       audit.OpCriterionDelete,
		Kind:     audit.KindCriterion,
		EntityID: id,
		ActorID:  actorID,
		LockKey:  e.criterionLockKey(ctx, id),
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		before, err := e.Repo.GetCriterion(ctx, tx, id)
		if err != nil {
			return change{}, fromRepo(err, "criterion "+id)
		}
		if err := e.Repo.DeleteCriterion(ctx, tx, id); err != nil {
			return change{Before: before}, fromRepo(err, "criterion "+id)
		}
		return change{Before: before}, nil
	})
}

// criterionLockKey finds the owning activity so criterion edits serialize
// with creations on the same activity. Criteria never move between
// activities, so the lookup outside the lock is stable.
func (e Engine) criterionLockKey(ctx context.Context, id string) string {
	c, err := e.Repo.GetCriterion(ctx, nil, id)
	if err != nil {
		return "criterion:" + id
	}
	return activityKey(c.ActivityID)
}
