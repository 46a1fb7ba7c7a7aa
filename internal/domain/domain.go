package domain

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire and storage layout for calendar dates.
const DateLayout = "2006-01-02"

type Activity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivityStatus string

const (
	ActivityActive   ActivityStatus = "ACTIVE"
	ActivityInactive ActivityStatus = "INACTIVE"
)

type Criterion struct {
	ID         string     `json:"id"`
	ActivityID string     `json:"activity_id"`
	UnitCode   string     `json:"unit_code"`
	Value      float64    `json:"value"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Status string

const (
	StatusAssigned  Status = "ASSIGNED"
	StatusCompleted Status = "COMPLETED"
)

// ParseStatus accepts the stored spelling only.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusAssigned, StatusCompleted:
		return Status(s), true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "UNPAID"
	PaymentDraft     PaymentStatus = "DRAFT"
	PaymentPending   PaymentStatus = "PENDING_PAYMENT"
	PaymentApproved  PaymentStatus = "APPROVED"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Lockable reports whether a payment batch may hold an assignment in this status.
func (p PaymentStatus) Lockable() bool {
	switch p {
	case PaymentDraft, PaymentPending, PaymentApproved:
		return true
	}
	return false
}

// Evaluation is the measured progress of an assignment. Its presence is what
// makes an assignment COMPLETED.
type Evaluation struct {
	ActualValue          float64   `json:"actual_value"`
	CompletionPercentage int64     `json:"completion_percentage"`
	Count                int       `json:"evaluation_count"`
	FirstEvaluatedAt     time.Time `json:"first_evaluated_at"`
	LastEvaluatedAt      time.Time `json:"last_evaluated_at"`
}

type Assignment struct {
	ID                  string
	ActivityID          string
	EmployeeID          string
	Date                time.Time
	Evaluation          *Evaluation
	PaymentStatus       PaymentStatus
	IncludedInPaymentID *string
	PaidInPaymentID     *string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Status is ASSIGNED until the first successful evaluation.
func (a Assignment) Status() Status {
	if a.Evaluation == nil {
		return StatusAssigned
	}
	return StatusCompleted
}

func (a Assignment) IsEditable() bool { return a.IncludedInPaymentID == nil }

func (a Assignment) IsReEvaluatable() bool { return a.IncludedInPaymentID == nil }

// assignmentJSON is the flat shape used for audit snapshots and API output.
type assignmentJSON struct {
	ID                   string        `json:"id"`
	ActivityID           string        `json:"activity_id"`
	EmployeeID           string        `json:"employee_id"`
	AssignmentDate       string        `json:"assignment_date"`
	Status               Status        `json:"status"`
	ActualValue          *float64      `json:"actual_value"`
	CompletionPercentage *int64        `json:"completion_percentage"`
	EvaluationCount      int           `json:"evaluation_count"`
	FirstEvaluatedAt     *time.Time    `json:"first_evaluated_at"`
	LastEvaluatedAt      *time.Time    `json:"last_evaluated_at"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	IncludedInPaymentID  *string       `json:"included_in_payment_id"`
	PaidInPaymentID      *string       `json:"paid_in_payment_id"`
	IsEditable           bool          `json:"is_editable"`
	IsReEvaluatable      bool          `json:"is_re_evaluatable"`
	Version              int64         `json:"version"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func (a Assignment) MarshalJSON() ([]byte, error) {
	out := assignmentJSON{
		ID:                  a.ID,
		ActivityID:          a.ActivityID,
		EmployeeID:          a.EmployeeID,
		AssignmentDate:      FormatDate(a.Date),
		Status:              a.Status(),
		PaymentStatus:       a.PaymentStatus,
		IncludedInPaymentID: a.IncludedInPaymentID,
		PaidInPaymentID:     a.PaidInPaymentID,
		IsEditable:          a.IsEditable(),
		IsReEvaluatable:     a.IsReEvaluatable(),
		Version:             a.Version,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	if ev := a.Evaluation; ev != nil {
		out.ActualValue = &ev.ActualValue
		out.CompletionPercentage = &ev.CompletionPercentage
		out.EvaluationCount = ev.Count
		out.FirstEvaluatedAt = &ev.FirstEvaluatedAt
		out.LastEvaluatedAt = &ev.LastEvaluatedAt
	}
	return json.Marshal(out)
}

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

type AuditEntry struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	ActorID    string          `json:"actor_id"`
	TS         time.Time       `json:"ts"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	Error      string          `json:"error,omitempty"`
}

// GridCell holds at most one assignment; Hidden counts further assignments
// for the same employee and date.
type GridCell struct {
	Date       string      `json:"date"`
	Assignment *Assignment `json:"assignment,omitempty"`
	Hidden     int         `json:"hidden,omitempty"`
}

type GridRow struct {
	EmployeeID string     `json:"employee_id"`
	Cells      []GridCell `json:"cells"`
}

type Grid struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Dates      []string  `json:"dates"`
	Rows       []GridRow `json:"rows"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
