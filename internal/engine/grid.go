package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"shiftline/internal/domain"
	"shiftline/internal/repo"
)

// GridQuery selects the employee × date window to project. Without explicit
// employees the axis pages over everyone scheduled in the range.
type GridQuery struct {
	EmployeeIDs []string
	From        time.Time
	To          time.Time
	Limit       int
	// Cursor is the last employee id of the previous page.
	Cursor string
}

// Project builds a read-only snapshot of the schedule. Every page carries
// the full date axis; only the employee axis is paginated.
func (e Engine) Project(ctx context.Context, q GridQuery) (domain.Grid, error) {
	from, to := domain.Day(q.From), domain.Day(q.To)
	if from.IsZero() || to.IsZero() {
		return domain.Grid{}, validationf("grid needs both from and to dates")
	}
	if to.Before(from) {
		return domain.Grid{}, newError(ErrInvalidRange, "from %s is after to %s", domain.FormatDate(from), domain.FormatDate(to))
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if maxDays := e.gridMaxDays(); days > maxDays {
		return domain.Grid{}, validationf("grid spans %d days, limit is %d", days, maxDays)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.gridPageSize()
	}

	employees, next, err := e.employeePage(ctx, q, from, to, limit)
	if err != nil {
		return domain.Grid{}, err
	}

	grid := domain.Grid{
		From:       domain.FormatDate(from),
		To:         domain.FormatDate(to),
		NextCursor: next,
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		grid.Dates = append(grid.Dates, domain.FormatDate(d))
	}
	grid.Rows = make([]domain.GridRow, 0, len(employees))
	if len(employees) == 0 {
		return grid, nil
	}

	items, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{EmployeeIDs: employees, From: &from, To: &to})
	if err != nil {
		return domain.Grid{}, err
	}
	cells := make(map[string][]domain.Assignment, len(items))
	for _, a := range items {
		k := a.EmployeeID + "|" + domain.FormatDate(a.Date)
		cells[k] = append(cells[k], a)
	}
	for _, emp := range employees {
		row := domain.GridRow{EmployeeID: emp, Cells: make([]domain.GridCell, 0, len(grid.Dates))}
		for _, date := range grid.Dates {
			row.Cells = append(row.Cells, cellOf(date, cells[emp+"|"+date]))
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid, nil
}

// cellOf shows the earliest created assignment; the rest are counted.
func cellOf(date string, items []domain.Assignment) domain.GridCell {
	cell := domain.GridCell{Date: date}
	if len(items) == 0 {
		return cell
	}
	first := items[0]
	for _, a := range items[1:] {
		if a.CreatedAt.Before(first.CreatedAt) || (a.CreatedAt.Equal(first.CreatedAt) && a.ID < first.ID) {
			first = a
		}
	}
	cell.Assignment = &first
	cell.Hidden = len(items) - 1
	return cell
}

func (e Engine) employeePage(ctx context.Context, q GridQuery, from, to time.Time, limit int) ([]string, string, error) {
	var page []string
	if len(q.EmployeeIDs) > 0 {
		seen := make(map[string]bool, len(q.EmployeeIDs))
		var all []string
		for _, id := range q.EmployeeIDs {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			all = append(all, id)
		}
		sort.Strings(all)
		for _, id := range all {
			if q.Cursor != "" && id <= q.Cursor {
				continue
			}
			page = append(page, id)
			if len(page) > limit {
				break
			}
		}
	} else {
		var err error
		page, err = e.Repo.ListScheduledEmployees(ctx, from, to, q.Cursor, limit+1)
		if err != nil {
			return nil, "", err
		}
	}
	if len(page) > limit {
		page = page[:limit]
		return page, page[len(page)-1], nil
	}
	return page, "", nil
}

func (e Engine) gridMaxDays() int {
	if e.Config == nil || e.Config.Grid.MaxDays < 1 {
		return 93
	}
	return e.Config.Grid.MaxDays
}

func (e Engine) gridPageSize() int {
	if e.Config == nil || e.Config.Grid.PageSize < 1 {
		return 50
	}
	return e.Config.Grid.PageSize
}
