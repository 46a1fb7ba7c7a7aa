package engine_test

import (
	"errors"
	"testing"

	"shiftline/internal/engine"
)

func TestProjectGrid(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{ID: "act-2", Name: "Sorting"}); err != nil {
		t.Fatal(err)
	}
	env.criterion(t, "act-1", "2024-01-01", nil, 10)
	env.criterion(t, "act-2", "2024-01-01", nil, 10)
	first := env.assign(t, "act-1", "emp-a", "2024-02-01")
	env.assign(t, "act-2", "emp-a", "2024-02-01")
	env.assign(t, "act-1", "emp-b", "2024-02-03")
	env.assign(t, "act-1", "emp-c", "2024-02-02")
	env.assign(t, "act-1", "emp-z", "2024-03-01")

	grid, err := env.Engine.Project(env.Ctx, engine.GridQuery{From: day(t, "2024-02-01"), To: day(t, "2024-02-03"), Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(grid.Dates) != 3 || grid.Dates[0] != "2024-02-01" || grid.Dates[2] != "2024-02-03" {
		t.Fatalf("unexpected date axis %v", grid.Dates)
	}
	if len(grid.Rows) != 2 || grid.Rows[0].EmployeeID != "emp-a" || grid.Rows[1].EmployeeID != "emp-b" {
		t.Fatalf("unexpected first page %+v", grid.Rows)
	}
	if grid.NextCursor != "emp-b" {
		t.Fatalf("expected cursor emp-b, got %q", grid.NextCursor)
	}
	cell := grid.Rows[0].Cells[0]
	if cell.Assignment == nil || cell.Assignment.ID != first.ID || cell.Hidden != 1 {
		t.Fatalf("expected earliest assignment with one hidden, got %+v", cell)
	}
	for _, row := range grid.Rows {
		if len(row.Cells) != len(grid.Dates) {
			t.Fatalf("row %s is missing dates", row.EmployeeID)
		}
	}
	if grid.Rows[1].Cells[0].Assignment != nil || grid.Rows[1].Cells[2].Assignment == nil {
		t.Fatalf("emp-b cells misplaced: %+v", grid.Rows[1].Cells)
	}

	next, err := env.Engine.Project(env.Ctx, engine.GridQuery{From: day(t, "2024-02-01"), To: day(t, "2024-02-03"), Limit: 2, Cursor: grid.NextCursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(next.Rows) != 1 || next.Rows[0].EmployeeID != "emp-c" || next.NextCursor != "" {
		t.Fatalf("unexpected second page %+v cursor=%q", next.Rows, next.NextCursor)
	}
}

func TestProjectGridExplicitEmployees(t *testing.T) {
	env := newTestEnv(t)
	env.criterion(t, "act-1", "2024-01-01", nil, 10)
	env.assign(t, "act-1", "emp-a", "2024-02-01")

	grid, err := env.Engine.Project(env.Ctx, engine.GridQuery{
		EmployeeIDs: []string{"emp-x", "emp-a", "emp-a"},
		From:        day(t, "2024-02-01"),
		To:          day(t, "2024-02-01"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(grid.Rows) != 2 || grid.Rows[0].EmployeeID != "emp-a" || grid.Rows[1].EmployeeID != "emp-x" {
		t.Fatalf("unexpected rows %+v", grid.Rows)
	}
	if grid.Rows[1].Cells[0].Assignment != nil {
		t.Fatal("unscheduled employee should have an empty cell")
	}
}

func TestProjectGridRejectsBadRanges(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Project(env.Ctx, engine.GridQuery{From: day(t, "2024-02-02"), To: day(t, "2024-02-01")}); !errors.Is(err, engine.ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
	if _, err := env.Engine.Project(env.Ctx, engine.GridQuery{From: day(t, "2024-01-01"), To: day(t, "2024-12-31")}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for oversized range, got %v", err)
	}
}
