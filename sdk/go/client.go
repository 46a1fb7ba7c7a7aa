package shiftlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Shiftline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set. Servers
	// accept it only when legacy actor headers are enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

type Activity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type Criterion struct {
	ID         string  `json:"id"`
	ActivityID string  `json:"activity_id"`
	UnitCode   string  `json:"unit_code"`
	Value      float64 `json:"value"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date,omitempty"`
}

type Assignment struct {
	ID                   string   `json:"id"`
	ActivityID           string   `json:"activity_id"`
	EmployeeID           string   `json:"employee_id"`
	AssignmentDate       string   `json:"assignment_date"`
	Status               string   `json:"status"`
	ActualValue          *float64 `json:"actual_value"`
	CompletionPercentage *int64   `json:"completion_percentage"`
	EvaluationCount      int      `json:"evaluation_count"`
	PaymentStatus        string   `json:"payment_status"`
	IncludedInPaymentID  *string  `json:"included_in_payment_id"`
	PaidInPaymentID      *string  `json:"paid_in_payment_id"`
	IsEditable           bool     `json:"is_editable"`
	Version              int64    `json:"version"`
}

type AuditEntry struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
}

// PaginatedAudit wraps history responses with cursors.
type PaginatedAudit struct {
	Items      []AuditEntry `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

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
	NextCursor string    `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsLocked reports whether err is a 423 caused by a payment lock, and the
// payment holding it.
func IsLocked(err error) (string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusLocked {
		return "", false
	}
	paymentID, _ := apiErr.Details["payment_id"].(string)
	return paymentID, true
}

func (c *Client) CreateActivity(ctx context.Context, id, name string) (Activity, error) {
	body := map[string]any{"name": name}
	if id != "" {
		body["id"] = id
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, "activities", body, &resp)
	return resp, err
}

// CreateCriterion adds a target to an activity. Dates are YYYY-MM-DD; an
// empty end leaves the window open.
func (c *Client) CreateCriterion(ctx context.Context, activityID, unitCode string, value float64, start, end string) (Criterion, error) {
	body := map[string]any{
		"unit_code":  unitCode,
		"value":      value,
		"start_date": start,
	}
	if end != "" {
		body["end_date"] = end
	}
	var resp Criterion
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("activities/%s/criteria", url.PathEscape(activityID)), body, &resp)
	return resp, err
}

func (c *Client) CreateAssignment(ctx context.Context, activityID, employeeID, date string) (Assignment, error) {
	body := map[string]any{
		"activity_id":     activityID,
		"employee_id":     employeeID,
		"assignment_date": date,
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments", body, &resp)
	return resp, err
}

func (c *Client) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodGet, "assignments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) DeleteAssignment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "assignments/"+url.PathEscape(id), nil, nil)
}

// Evaluate records the actual value achieved on an assignment.
func (c *Client) Evaluate(ctx context.Context, id string, actual float64) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(id)+"/evaluate", map[string]any{"actual_value": actual}, &resp)
	return resp, err
}

func (c *Client) MarkComplete(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// Lock includes the assignment in a payment batch. status may be empty.
func (c *Client) Lock(ctx context.Context, id, paymentID, status string) (Assignment, error) {
	body := map[string]any{"payment_id": paymentID}
	if status != "" {
		body["status"] = status
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(id)+"/lock", body, &resp)
	return resp, err
}

func (c *Client) Unlock(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(id)+"/unlock", nil, &resp)
	return resp, err
}

func (c *Client) CancelLock(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(id)+"/cancel-lock", nil, &resp)
	return resp, err
}

func (c *Client) Finalize(ctx context.Context, id, paymentID string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(id)+"/finalize", map[string]any{"payment_id": paymentID}, &resp)
	return resp, err
}

// History returns one page of the audit trail of an entity, oldest first.
func (c *Client) History(ctx context.Context, entityID string, limit int, cursor string) (PaginatedAudit, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("after", cursor)
	}
	endpoint := "history/" + url.PathEscape(entityID)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedAudit
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Grid fetches one page of the schedule grid. employees may be empty to page
// through everyone scheduled in the range.
func (c *Client) Grid(ctx context.Context, from, to string, employees []string, limit int, cursor string) (Grid, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	if len(employees) > 0 {
		q.Set("employee_id", strings.Join(employees, ","))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp Grid
	err := c.do(ctx, http.MethodGet, "grid?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
