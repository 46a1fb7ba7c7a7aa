package server

import (
	"encoding/json"
	"time"

	"shiftline/internal/domain"
)

// Request payloads

type CreateActivityRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
}

type CreateCriterionRequest struct {
	ID        *string `json:"id,omitempty"`
	UnitCode  string  `json:"unit_code"`
	Value     float64 `json:"value"`
	StartDate string  `json:"start_date" example:"2024-01-01"`
	EndDate   *string `json:"end_date,omitempty" example:"2024-12-31"`
}

type UpdateCriterionRequest struct {
	UnitCode  *string  `json:"unit_code,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	StartDate *string  `json:"start_date,omitempty"`
	EndDate   *string  `json:"end_date,omitempty"`
	OpenEnded bool     `json:"open_ended,omitempty"`
}

type CreateAssignmentRequest struct {
	ID             *string `json:"id,omitempty"`
	ActivityID     string  `json:"activity_id"`
	EmployeeID     string  `json:"employee_id"`
	AssignmentDate string  `json:"assignment_date" example:"2024-02-01"`
}

type UpdateAssignmentRequest struct {
	ActivityID     *string `json:"activity_id,omitempty"`
	EmployeeID     *string `json:"employee_id,omitempty"`
	AssignmentDate *string `json:"assignment_date,omitempty"`
}

type EvaluateRequest struct {
	ActualValue float64 `json:"actual_value"`
}

type LockRequest struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status,omitempty" enum:"DRAFT,PENDING_PAYMENT,APPROVED"`
}

type FinalizeRequest struct {
	PaymentID string `json:"payment_id"`
}

// Responses

type ActivityResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type ActivityStatusResponse struct {
	ActivityID string `json:"activity_id"`
	AsOf       string `json:"as_of"`
	Status     string `json:"status" enum:"ACTIVE,INACTIVE"`
}

type CriterionResponse struct {
	ID         string  `json:"id"`
	ActivityID string  `json:"activity_id"`
	UnitCode   string  `json:"unit_code"`
	Value      float64 `json:"value"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

type ActiveCriterionResponse struct {
	ActivityID string             `json:"activity_id"`
	AsOf       string             `json:"as_of"`
	Criterion  *CriterionResponse `json:"criterion"`
}

type AssignmentResponse struct {
	ID                   string   `json:"id"`
	ActivityID           string   `json:"activity_id"`
	EmployeeID           string   `json:"employee_id"`
	AssignmentDate       string   `json:"assignment_date"`
	Status               string   `json:"status" enum:"ASSIGNED,COMPLETED"`
	ActualValue          *float64 `json:"actual_value"`
	CompletionPercentage *int64   `json:"completion_percentage"`
	EvaluationCount      int      `json:"evaluation_count"`
	FirstEvaluatedAt     *string  `json:"first_evaluated_at"`
	LastEvaluatedAt      *string  `json:"last_evaluated_at"`
	PaymentStatus        string   `json:"payment_status"`
	IncludedInPaymentID  *string  `json:"included_in_payment_id"`
	PaidInPaymentID      *string  `json:"paid_in_payment_id"`
	IsEditable           bool     `json:"is_editable"`
	IsReEvaluatable      bool     `json:"is_re_evaluatable"`
	Version              int64    `json:"version"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

type AuditEntryResponse struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Outcome    string          `json:"outcome" enum:"SUCCESS,FAILURE"`
	Error      string          `json:"error,omitempty"`
}

type GridCellResponse struct {
	Date       string              `json:"date"`
	Assignment *AssignmentResponse `json:"assignment,omitempty"`
	Hidden     int                 `json:"hidden,omitempty"`
}

type GridRowResponse struct {
	EmployeeID string             `json:"employee_id"`
	Cells      []GridCellResponse `json:"cells"`
}

type GridResponse struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Dates      []string          `json:"dates"`
	Rows       []GridRowResponse `json:"rows"`
	NextCursor *string           `json:"next_cursor,omitempty"`
}

type paginatedAssignments struct {
	Items []AssignmentResponse `json:"items"`
}

type paginatedAudit struct {
	Items      []AuditEntryResponse `json:"items"`
	NextCursor *string              `json:"next_cursor,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func activityResponse(a domain.Activity) ActivityResponse {
	return ActivityResponse{ID: a.ID, Name: a.Name, CreatedAt: formatTime(a.CreatedAt)}
}

func criterionResponse(c domain.Criterion) CriterionResponse {
	out := CriterionResponse{
		ID:         c.ID,
		ActivityID: c.ActivityID,
		UnitCode:   c.UnitCode,
		Value:      c.Value,
		StartDate:  domain.FormatDate(c.StartDate),
		CreatedAt:  formatTime(c.CreatedAt),
		UpdatedAt:  formatTime(c.UpdatedAt),
	}
	if c.EndDate != nil {
		end := domain.FormatDate(*c.EndDate)
		out.EndDate = &end
	}
	return out
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	out := AssignmentResponse{
		ID:                  a.ID,
		ActivityID:          a.ActivityID,
		EmployeeID:          a.EmployeeID,
		AssignmentDate:      domain.FormatDate(a.Date),
		Status:              string(a.Status()),
		PaymentStatus:       string(a.PaymentStatus),
		IncludedInPaymentID: a.IncludedInPaymentID,
		PaidInPaymentID:     a.PaidInPaymentID,
		IsEditable:          a.IsEditable(),
		IsReEvaluatable:     a.IsReEvaluatable(),
		Version:             a.Version,
		CreatedAt:           formatTime(a.CreatedAt),
		UpdatedAt:           formatTime(a.UpdatedAt),
	}
	if ev := a.Evaluation; ev != nil {
		actual, pct := ev.ActualValue, ev.CompletionPercentage
		first, last := formatTime(ev.FirstEvaluatedAt), formatTime(ev.LastEvaluatedAt)
		out.ActualValue = &actual
		out.CompletionPercentage = &pct
		out.EvaluationCount = ev.Count
		out.FirstEvaluatedAt = &first
		out.LastEvaluatedAt = &last
	}
	return out
}

func mapAssignments(items []domain.Assignment) []AssignmentResponse {
	out := make([]AssignmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, assignmentResponse(a))
	}
	return out
}

func auditResponse(e domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		Seq:        e.Seq,
		ID:         e.ID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Operation:  e.Operation,
		ActorID:    e.ActorID,
		TS:         formatTime(e.TS),
		Before:     e.Before,
		After:      e.After,
		Outcome:    string(e.Outcome),
		Error:      e.Error,
	}
}

func gridResponse(g domain.Grid) GridResponse {
	out := GridResponse{From: g.From, To: g.To, Dates: g.Dates, Rows: make([]GridRowResponse, 0, len(g.Rows))}
	if g.NextCursor != "" {
		next := g.NextCursor
		out.NextCursor = &next
	}
	for _, row := range g.Rows {
		r := GridRowResponse{EmployeeID: row.EmployeeID, Cells: make([]GridCellResponse, 0, len(row.Cells))}
		for _, cell := range row.Cells {
			c := GridCellResponse{Date: cell.Date, Hidden: cell.Hidden}
			if cell.Assignment != nil {
				a := assignmentResponse(*cell.Assignment)
				c.Assignment = &a
			}
			r.Cells = append(r.Cells, c)
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}
