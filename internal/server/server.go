package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"shiftline/internal/domain"
	"shiftline/internal/engine"
	"shiftline/internal/obs"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// RateLimit is requests per second per client; zero disables it.
	RateLimit float64
	Burst     int
	// TrustForwardedFor keys the limiter on X-Forwarded-For instead of the
	// peer address.
	TrustForwardedFor bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"locked"`
	Message string         `json:"message" example:"locked: included in payment PAY-1"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"payment_id\":\"PAY-1\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the shiftline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	obs.Init()
	router := chi.NewRouter()
	router.Use(requestLog)
	router.Use(obs.Instrument)
	if cfg.RateLimit > 0 {
		limiter := newRateLimiter(cfg.RateLimit, cfg.Burst)
		limiter.trustForwarded = cfg.TrustForwardedFor
		router.Use(limiter.middleware)
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Handle("/metrics", obs.Handler())

	hcfg := huma.DefaultConfig("Shiftline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerActivities(group, cfg.Engine)
	registerCriteria(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerPayments(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerGrid(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine error kinds onto HTTP statuses. The operation and
// entity travel in details so a client can fetch the audit trail of the
// rejected attempt.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var details map[string]any
	var ee *engine.Error
	if errors.As(err, &ee) {
		details = map[string]any{}
		if ee.Op != "" {
			details["operation"] = ee.Op
		}
		if ee.EntityID != "" {
			details["entity_id"] = ee.EntityID
		}
		if ee.PaymentID != "" {
			details["payment_id"] = ee.PaymentID
		}
		if len(details) == 0 {
			details = nil
		}
	}
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, details)
	case errors.Is(err, engine.ErrLocked):
		return newAPIError(http.StatusLocked, "locked", msg, details)
	case errors.Is(err, engine.ErrDuplicateAssignment):
		return newAPIError(http.StatusConflict, "duplicate_assignment", msg, details)
	case errors.Is(err, engine.ErrOverlap):
		return newAPIError(http.StatusConflict, "overlap", msg, details)
	case errors.Is(err, engine.ErrConcurrencyConflict):
		return newAPIError(http.StatusConflict, "concurrency_conflict", msg, details)
	case errors.Is(err, engine.ErrNoActiveCriteria):
		return newAPIError(http.StatusUnprocessableEntity, "no_active_criteria", msg, details)
	case errors.Is(err, engine.ErrEvaluationBlocked):
		return newAPIError(http.StatusUnprocessableEntity, "evaluation_blocked", msg, details)
	case errors.Is(err, engine.ErrInvalidRange):
		return newAPIError(http.StatusBadRequest, "invalid_range", msg, details)
	case errors.Is(err, engine.ErrValidation):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, details)
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "persistence_timeout", msg, details)
	default:
		obs.Error("request failed", map[string]any{"error": msg})
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusLocked:
		return "locked"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Shiftline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ActivityCreateOptions{Name: input.Body.Name, ActorID: actorID}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		a, err := e.CreateActivity(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ActivityResponse `json:"body"`
	}, error) {
		items, err := e.ListActivities(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ActivityResponse, 0, len(items))
		for _, a := range items {
			out = append(out, activityResponse(a))
		}
		return &struct {
			Body []ActivityResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		a, err := e.GetActivity(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity-status",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/status",
		Summary:     "Derived activity status on a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
		AsOf       string `query:"as_of" doc:"YYYY-MM-DD, defaults to today"`
	}) (*struct {
		Body ActivityStatusResponse `json:"body"`
	}, error) {
		asOf, herr := dateOrToday(input.AsOf, "as_of")
		if herr != nil {
			return nil, herr
		}
		status, err := e.ActivityStatus(ctx, input.ActivityID, asOf)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityStatusResponse `json:"body"`
		}{Body: ActivityStatusResponse{ActivityID: input.ActivityID, AsOf: domain.FormatDate(asOf), Status: string(status)}}, nil
	})
}

func registerCriteria(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-criterion",
		Method:        http.MethodPost,
		Path:          "/activities/{activity_id}/criteria",
		Summary:       "Add completion criterion",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActivityID string                 `path:"activity_id"`
		Body       CreateCriterionRequest `json:"body"`
	}) (*struct {
		Body CriterionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		start, herr := requiredDate(input.Body.StartDate, "start_date")
		if herr != nil {
			return nil, herr
		}
		end, herr := optionalDate(input.Body.EndDate, "end_date")
		if herr != nil {
			return nil, herr
		}
		opts := engine.CriterionCreateOptions{
			ActivityID: input.ActivityID,
			UnitCode:   input.Body.UnitCode,
			Value:      input.Body.Value,
			StartDate:  start,
			EndDate:    end,
			ActorID:    actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		c, err := e.CreateCriterion(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CriterionResponse `json:"body"`
		}{Body: criterionResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-criteria",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/criteria",
		Summary:     "List criteria of an activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
	}) (*struct {
		Body []CriterionResponse `json:"body"`
	}, error) {
		items, err := e.ListCriteria(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]CriterionResponse, 0, len(items))
		for _, c := range items {
			out = append(out, criterionResponse(c))
		}
		return &struct {
			Body []CriterionResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-criterion",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/criteria/active",
		Summary:     "Criterion valid on a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
		AsOf       string `query:"as_of" doc:"YYYY-MM-DD, defaults to today"`
	}) (*struct {
		Body ActiveCriterionResponse `json:"body"`
	}, error) {
		asOf, herr := dateOrToday(input.AsOf, "as_of")
		if herr != nil {
			return nil, herr
		}
		c, ok, err := e.ActiveCriterion(ctx, input.ActivityID, asOf)
		if err != nil {
			return nil, handleError(err)
		}
		out := ActiveCriterionResponse{ActivityID: input.ActivityID, AsOf: domain.FormatDate(asOf)}
		if ok {
			resp := criterionResponse(c)
			out.Criterion = &resp
		}
		return &struct {
			Body ActiveCriterionResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-criterion",
		Method:      http.MethodPatch,
		Path:        "/criteria/{criterion_id}",
		Summary:     "Update completion criterion",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CriterionID string                 `path:"criterion_id"`
		Body        UpdateCriterionRequest `json:"body"`
	}) (*struct {
		Body CriterionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		start, herr := optionalDate(input.Body.StartDate, "start_date")
		if herr != nil {
			return nil, herr
		}
		end, herr := optionalDate(input.Body.EndDate, "end_date")
		if herr != nil {
			return nil, herr
		}
		c, err := e.UpdateCriterion(ctx, engine.CriterionUpdateOptions{
			ID:        input.CriterionID,
			UnitCode:  input.Body.UnitCode,
			Value:     input.Body.Value,
			StartDate: start,
			EndDate:   end,
			OpenEnded: input.Body.OpenEnded,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CriterionResponse `json:"body"`
		}{Body: criterionResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-criterion",
		Method:        http.MethodDelete,
		Path:          "/criteria/{criterion_id}",
		Summary:       "Delete completion criterion",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CriterionID string `path:"criterion_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteCriterion(ctx, input.CriterionID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type assignmentOutput struct {
	Body AssignmentResponse `json:"body"`
}

func assignmentResult(a domain.Assignment, err error) (*assignmentOutput, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &assignmentOutput{Body: assignmentResponse(a)}, nil
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/assignments",
		Summary:       "Schedule an employee on an activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateAssignmentRequest `json:"body"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, herr := requiredDate(input.Body.AssignmentDate, "assignment_date")
		if herr != nil {
			return nil, herr
		}
		opts := engine.AssignmentCreateOptions{
			ActivityID: input.Body.ActivityID,
			EmployeeID: input.Body.EmployeeID,
			Date:       date,
			ActorID:    actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		return assignmentResult(e.CreateAssignment(ctx, opts))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments by employee, date range or status",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		From       string `query:"from"`
		To         string `query:"to"`
		Status     string `query:"status" doc:"ASSIGNED or COMPLETED"`
	}) (*struct {
		Body paginatedAssignments `json:"body"`
	}, error) {
		from, herr := optionalDate(nonEmpty(input.From), "from")
		if herr != nil {
			return nil, herr
		}
		to, herr := optionalDate(nonEmpty(input.To), "to")
		if herr != nil {
			return nil, herr
		}
		var (
			items []domain.Assignment
			err   error
		)
		switch {
		case input.EmployeeID != "":
			items, err = e.ListByEmployee(ctx, input.EmployeeID, from, to)
		case input.Status != "":
			items, err = e.ListByStatus(ctx, domain.Status(input.Status))
		case from != nil && to != nil:
			items, err = e.ListByDateRange(ctx, *from, *to)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "employee_id, status or from and to is required", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedAssignments `json:"body"`
		}{Body: paginatedAssignments{Items: mapAssignments(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*assignmentOutput, error) {
		return assignmentResult(e.GetAssignment(ctx, input.AssignmentID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-assignment",
		Method:      http.MethodPatch,
		Path:        "/assignments/{assignment_id}",
		Summary:     "Move an assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusLocked, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssignmentID string                  `path:"assignment_id"`
		Body         UpdateAssignmentRequest `json:"body"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, herr := optionalDate(input.Body.AssignmentDate, "assignment_date")
		if herr != nil {
			return nil, herr
		}
		return assignmentResult(e.UpdateAssignment(ctx, engine.AssignmentUpdateOptions{
			ID:         input.AssignmentID,
			ActivityID: input.Body.ActivityID,
			EmployeeID: input.Body.EmployeeID,
			Date:       date,
			ActorID:    actorID,
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-assignment",
		Method:        http.MethodDelete,
		Path:          "/assignments/{assignment_id}",
		Summary:       "Delete assignment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusLocked},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAssignment(ctx, input.AssignmentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/evaluate",
		Summary:     "Record actual progress",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusLocked, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssignmentID string          `path:"assignment_id"`
		Body         EvaluateRequest `json:"body"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return assignmentResult(e.Evaluate(ctx, input.AssignmentID, input.Body.ActualValue, actorID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/complete",
		Summary:     "Mark complete at the criterion target",
		Errors:      []int{http.StatusNotFound, http.StatusLocked, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return assignmentResult(e.MarkComplete(ctx, input.AssignmentID, actorID))
	})
}

func registerPayments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "lock-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/lock",
		Summary:     "Include assignment in a payment batch",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusLocked},
	}, func(ctx context.Context, input *struct {
		AssignmentID string      `path:"assignment_id"`
		Body         LockRequest `json:"body"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return assignmentResult(e.SetLock(ctx, input.AssignmentID, input.Body.PaymentID, domain.PaymentStatus(input.Body.Status), actorID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlock-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/unlock",
		Summary:     "Remove assignment from its payment batch",
		Errors:      []int{http.StatusNotFound, http.StatusLocked},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return assignmentResult(e.ClearLock(ctx, input.AssignmentID, actorID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-assignment-lock",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/cancel-lock",
		Summary:     "Release assignment from a cancelled payment batch",
		Errors:      []int{http.StatusNotFound, http.StatusLocked},
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return assignmentResult(e.CancelLock(ctx, input.AssignmentID, actorID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-assignment-lock",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/finalize",
		Summary:     "Record payment of an assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusLocked},
	}, func(ctx context.Context, input *struct {
		AssignmentID string          `path:"assignment_id"`
		Body         FinalizeRequest `json:"body"`
	}) (*assignmentOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return assignmentResult(e.FinalizeLock(ctx, input.AssignmentID, input.Body.PaymentID, actorID))
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "entity-history",
		Method:      http.MethodGet,
		Path:        "/history/{entity_id}",
		Summary:     "Audit history of an entity, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityID string `path:"entity_id"`
		After    int64  `query:"after" minimum:"0"`
		Limit    int    `query:"limit" default:"100" minimum:"1" maximum:"500"`
	}) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := e.HistoryAfter(ctx, input.EntityID, input.After, limit+1)
		if err != nil {
			return nil, handleError(err)
		}
		var next *string
		if len(items) > limit {
			items = items[:limit]
			cursor := fmt.Sprintf("%d", items[len(items)-1].Seq)
			next = &cursor
		}
		out := make([]AuditEntryResponse, 0, len(items))
		for _, entry := range items {
			out = append(out, auditResponse(entry))
		}
		return &struct {
			Body paginatedAudit `json:"body"`
		}{Body: paginatedAudit{Items: out, NextCursor: next}}, nil
	})
}

func registerGrid(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "schedule-grid",
		Method:      http.MethodGet,
		Path:        "/grid",
		Summary:     "Employee by date schedule grid",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From        string   `query:"from" required:"true"`
		To          string   `query:"to" required:"true"`
		EmployeeIDs []string `query:"employee_id"`
		Limit       int      `query:"limit"`
		Cursor      string   `query:"cursor"`
	}) (*struct {
		Body GridResponse `json:"body"`
	}, error) {
		from, herr := requiredDate(input.From, "from")
		if herr != nil {
			return nil, herr
		}
		to, herr := requiredDate(input.To, "to")
		if herr != nil {
			return nil, herr
		}
		grid, err := e.Project(ctx, engine.GridQuery{
			EmployeeIDs: input.EmployeeIDs,
			From:        from,
			To:          to,
			Limit:       input.Limit,
			Cursor:      input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GridResponse `json:"body"`
		}{Body: gridResponse(grid)}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 100
	}
	if in > 500 {
		return 500
	}
	return in
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func requiredDate(raw, field string) (time.Time, huma.StatusError) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", field+" is required", map[string]any{"field": field})
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": field})
	}
	return d, nil
}

func optionalDate(raw *string, field string) (*time.Time, huma.StatusError) {
	if raw == nil {
		return nil, nil
	}
	d, herr := requiredDate(*raw, field)
	if herr != nil {
		return nil, herr
	}
	return &d, nil
}

func dateOrToday(raw, field string) (time.Time, huma.StatusError) {
	if strings.TrimSpace(raw) == "" {
		return domain.Day(time.Now()), nil
	}
	return requiredDate(raw, field)
}
