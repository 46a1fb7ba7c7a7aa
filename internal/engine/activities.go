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

// ActivityCreateOptions are parameters for registering an activity.
type ActivityCreateOptions struct {
	ID      string
	Name    string
	ActorID string
}

// CreateActivity registers the thin activity record the engine checks
// assignments and criteria against. Without an explicit id one is derived
// from the name, so repeating the call reports the duplicate. A nameless
// request without an id is audited under a fresh id, returned on the error.
func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	id := opts.ID
	switch {
	case id != "":
	case opts.Name != "":
		id = ids.Deterministic("activity", opts.Name)
	default:
		id = ids.New()
	}
	var out domain.Activity
	err := e.mutate(ctx, mutation{
		Op:       audit.OpActivityCreate,
		Kind:     audit.KindActivity,
		EntityID: id,
		ActorID:  opts.ActorID,
		LockKey:  "activity:" + id,
	}, func(ctx context.Context, tx *sql.Tx) (change, error) {
		if opts.Name == "" {
			return change{}, validationf("activity name is required")
		}
		a := domain.Activity{ID: id, Name: opts.Name, CreatedAt: e.now()}
		if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return change{}, validationf("activity %s already exists", id)
			}
			return change{}, fromRepo(err, "activity "+id)
		}
		out = a
		return change{After: a}, nil
	})
	return out, err
}

func (e Engine) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	a, err := e.Repo.GetActivity(ctx, nil, id)
	if err != nil {
		return a, fromRepo(err, "activity "+id)
	}
	return a, nil
}

func (e Engine) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	return e.Repo.ListActivities(ctx)
}

// ActivityStatus derives ACTIVE or INACTIVE for the activity on asOf. The
// status is never stored.
func (e Engine) ActivityStatus(ctx context.Context, activityID string, asOf time.Time) (domain.ActivityStatus, error) {
	if _, err := e.GetActivity(ctx, activityID); err != nil {
		return "", err
	}
	items, err := e.Repo.CriteriaOn(ctx, nil, activityID, domain.Day(asOf))
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return domain.ActivityInactive, nil
	}
	return domain.ActivityActive, nil
}
