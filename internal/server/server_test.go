package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shiftline/internal/audit"
	"shiftline/internal/config"
	"shiftline/internal/db"
	"shiftline/internal/engine"
	"shiftline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, cfg)
}

func newTestServer(t *testing.T, mutate func(*Config)) (*testServer, func()) {
	t.Helper()
	e := newEngine(t, config.Default())
	cfg := Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var asTester = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

// seedHarvest creates activity "harvest" with an open-ended target of 30 KG
// from 2024-01-01.
func seedHarvest(t *testing.T, srv *testServer) {
	t.Helper()
	client := srv.Client()
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{"id": "harvest", "name": "Harvest"}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/harvest/criteria", map[string]any{
		"unit_code":  "KG",
		"value":      30,
		"start_date": "2024-01-01",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create criterion: %d %s", res.StatusCode, string(body))
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	seedHarvest(t, srv)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
		"id":              "asg-1",
		"activity_id":     "harvest",
		"employee_id":     "emp-1",
		"assignment_date": "2024-02-01",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create assignment: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/asg-1/evaluate", map[string]any{"actual_value": 15}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate: %d %s", res.StatusCode, string(body))
	}
	var evaluated AssignmentResponse
	if err := json.Unmarshal(body, &evaluated); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	if evaluated.Status != "COMPLETED" || evaluated.CompletionPercentage == nil || *evaluated.CompletionPercentage != 50 {
		t.Fatalf("unexpected evaluation %+v", evaluated)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/asg-1/lock", map[string]any{"payment_id": "PAY-1"}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("lock: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/asg-1/evaluate", map[string]any{"actual_value": 30}, asTester)
	if res.StatusCode != http.StatusLocked {
		t.Fatalf("expected 423, got %d %s", res.StatusCode, string(body))
	}
	apiErr := decodeError(t, body)
	if apiErr.Code != "locked" || apiErr.Details["payment_id"] != "PAY-1" || apiErr.Details["entity_id"] != "asg-1" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/history/asg-1", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(body))
	}
	var history paginatedAudit
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Items) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(history.Items))
	}
	last := history.Items[3]
	if last.Operation != audit.OpAssignmentEvaluate || last.Outcome != "FAILURE" || last.ActorID != "tester" {
		t.Fatalf("unexpected last entry %+v", last)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/history/asg-1?limit=2", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history page: %d %s", res.StatusCode, string(body))
	}
	history = paginatedAudit{}
	_ = json.Unmarshal(body, &history)
	if len(history.Items) != 2 || history.NextCursor == nil {
		t.Fatalf("expected a page of 2 with a cursor, got %+v", history)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	seedHarvest(t, srv)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"no criterion before window", http.MethodPost, "/v0/assignments", map[string]any{
			"activity_id": "harvest", "employee_id": "emp-1", "assignment_date": "2023-12-31",
		}, http.StatusUnprocessableEntity, "no_active_criteria"},
		{"overlapping criterion", http.MethodPost, "/v0/activities/harvest/criteria", map[string]any{
			"unit_code": "KG", "value": 10, "start_date": "2024-06-01", "end_date": "2024-06-30",
		}, http.StatusConflict, "overlap"},
		{"inverted window", http.MethodPost, "/v0/activities/harvest/criteria", map[string]any{
			"unit_code": "KG", "value": 10, "start_date": "2023-06-30", "end_date": "2023-06-01",
		}, http.StatusBadRequest, "invalid_range"},
		{"bad date", http.MethodPost, "/v0/assignments", map[string]any{
			"activity_id": "harvest", "employee_id": "emp-1", "assignment_date": "01/02/2024",
		}, http.StatusBadRequest, "bad_request"},
		{"missing activity", http.MethodGet, "/v0/activities/nope", nil, http.StatusNotFound, "not_found"},
		{"missing assignment", http.MethodPost, "/v0/assignments/nope/complete", nil, http.StatusNotFound, "not_found"},
		{"list without filter", http.MethodGet, "/v0/assignments", nil, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, body := doJSON(t, client, tc.method, srv.URL+tc.path, tc.body, asTester)
			if res.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, res.StatusCode, string(body))
			}
			if got := decodeError(t, body).Code; got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
		})
	}

	create := map[string]any{"activity_id": "harvest", "employee_id": "emp-1", "assignment_date": "2024-03-01"}
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", create, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", create, asTester)
	if res.StatusCode != http.StatusConflict || decodeError(t, body).Code != "duplicate_assignment" {
		t.Fatalf("expected duplicate_assignment, got %d %s", res.StatusCode, string(body))
	}
}

func TestCriteriaEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	seedHarvest(t, srv)

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/harvest/criteria/active?as_of=2023-01-01", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("active: %d %s", res.StatusCode, string(body))
	}
	var active ActiveCriterionResponse
	_ = json.Unmarshal(body, &active)
	if active.Criterion != nil {
		t.Fatalf("expected no criterion before window, got %+v", active.Criterion)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/harvest/criteria/active?as_of=2024-05-01", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("active: %d %s", res.StatusCode, string(body))
	}
	active = ActiveCriterionResponse{}
	_ = json.Unmarshal(body, &active)
	if active.Criterion == nil || active.Criterion.Value != 30 {
		t.Fatalf("unexpected active criterion %+v", active)
	}

	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/criteria/"+active.Criterion.ID, map[string]any{"end_date": "2024-03-31"}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update criterion: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/harvest/status?as_of=2024-04-01", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(body))
	}
	var status ActivityStatusResponse
	_ = json.Unmarshal(body, &status)
	if status.Status != "INACTIVE" {
		t.Fatalf("expected INACTIVE after window closed, got %s", status.Status)
	}

	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/criteria/"+active.Criterion.ID, nil, asTester)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete criterion: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/harvest/criteria", nil, asTester)
	var list []CriterionResponse
	_ = json.Unmarshal(body, &list)
	if res.StatusCode != http.StatusOK || len(list) != 0 {
		t.Fatalf("expected empty criteria list, got %d %s", res.StatusCode, string(body))
	}
}

func TestScheduleGrid(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	seedHarvest(t, srv)

	for _, emp := range []string{"emp-a", "emp-b", "emp-c"} {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
			"activity_id": "harvest", "employee_id": emp, "assignment_date": "2024-02-02",
		}, asTester)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", emp, res.StatusCode, string(body))
		}
	}

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/grid?from=2024-02-01&to=2024-02-03&limit=2", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("grid: %d %s", res.StatusCode, string(body))
	}
	var grid GridResponse
	if err := json.Unmarshal(body, &grid); err != nil {
		t.Fatalf("unmarshal grid: %v", err)
	}
	if len(grid.Dates) != 3 || len(grid.Rows) != 2 || grid.NextCursor == nil {
		t.Fatalf("unexpected grid %+v", grid)
	}
	if cell := grid.Rows[0].Cells[1]; cell.Assignment == nil || cell.Assignment.EmployeeID != "emp-a" {
		t.Fatalf("expected emp-a on 2024-02-02, got %+v", cell)
	}
	if grid.Rows[0].Cells[0].Assignment != nil {
		t.Fatal("expected empty cell on 2024-02-01")
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/grid?from=2024-02-01&to=2024-02-03&limit=2&cursor="+*grid.NextCursor, nil, asTester)
	grid = GridResponse{}
	_ = json.Unmarshal(body, &grid)
	if res.StatusCode != http.StatusOK || len(grid.Rows) != 1 || grid.Rows[0].EmployeeID != "emp-c" || grid.NextCursor != nil {
		t.Fatalf("unexpected second page %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/grid?from=2024-02-03&to=2024-02-01", nil, asTester)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, body).Code != "invalid_range" {
		t.Fatalf("expected invalid_range, got %d %s", res.StatusCode, string(body))
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t, func(cfg *Config) { cfg.Auth.AllowLegacyActorHeader = false })
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d %s", res.StatusCode, string(body))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities", nil, asTester)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("legacy header accepted while disabled: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}

	other, err := IssueToken("other-secret", "mallory", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities", nil, map[string]string{"Authorization": "Bearer " + other})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", res.StatusCode)
	}

	token, err := IssueToken(testSecret, "planner-7", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + token}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{"name": "Pruning"}, bearer)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create with token: %d %s", res.StatusCode, string(body))
	}
	var created ActivityResponse
	_ = json.Unmarshal(body, &created)
	history, err := srv.Engine.History(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].ActorID != "planner-7" {
		t.Fatalf("expected audit actor planner-7, got %+v", history)
	}

	if _, err := IssueToken("", "x", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestRateLimiter(t *testing.T) {
	l := newRateLimiter(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !l.allow("a", now) || !l.allow("a", now) {
		t.Fatal("burst should be allowed")
	}
	if l.allow("a", now) {
		t.Fatal("third request in the same instant should be limited")
	}
	if !l.allow("b", now) {
		t.Fatal("buckets are per client")
	}
	if !l.allow("a", now.Add(time.Second)) {
		t.Fatal("token should refill after a second")
	}
	l.allow("c", now.Add(10*time.Minute))
	if _, ok := l.buckets["a"]; ok {
		t.Fatal("idle bucket should be swept")
	}

	srv, cleanup := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.Burst = 1
	})
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first request: %d", res.StatusCode)
	}
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusTooManyRequests || res.Header.Get("Retry-After") == "" {
		t.Fatalf("expected 429, got %d %s", res.StatusCode, string(body))
	}
	if decodeError(t, body).Code != "rate_limited" {
		t.Fatalf("unexpected body %s", string(body))
	}
}

func TestRateLimiterIgnoresForwardedForByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v0/health", nil)
	req.RemoteAddr = "192.0.2.10:5123"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req, false); got != "192.0.2.10" {
		t.Fatalf("untrusted header used: %s", got)
	}
	if got := clientIP(req, true); got != "203.0.113.7" {
		t.Fatalf("trusted header ignored: %s", got)
	}

	srv, cleanup := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.Burst = 1
	})
	defer cleanup()
	for i, fwd := range []string{"198.51.100.1", "198.51.100.2"} {
		res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{"X-Forwarded-For": fwd})
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if res.StatusCode != want {
			t.Fatalf("request %d from %s: expected %d, got %d", i, fwd, want, res.StatusCode)
		}
	}

	trusted, cleanupTrusted := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.Burst = 1
		cfg.TrustForwardedFor = true
	})
	defer cleanupTrusted()
	for _, fwd := range []string{"198.51.100.1", "198.51.100.2"} {
		res, _ := doJSON(t, trusted.Client(), http.MethodGet, trusted.URL+"/v0/health", nil, map[string]string{"X-Forwarded-For": fwd})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("behind a trusted proxy %s should have its own bucket, got %d", fwd, res.StatusCode)
		}
	}
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	bodies := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/openapi.json", nil)
			for k, v := range asTester {
				req.Header.Set(k, v)
			}
			res, err := srv.Client().Do(req)
			if err != nil {
				return
			}
			defer res.Body.Close()
			if res.StatusCode == http.StatusOK {
				bodies[i], _ = io.ReadAll(res.Body)
			}
		}(i)
	}
	wg.Wait()
	for i, b := range bodies {
		if len(b) == 0 || !bytes.Equal(b, bodies[0]) {
			t.Fatalf("request %d got a different or empty document", i)
		}
	}
	if !bytes.Contains(bodies[0], []byte("bearerAuth")) {
		t.Fatal("expected security schemes in the document")
	}
}

func TestWebhookDeliversSignedEntries(t *testing.T) {
	type delivery struct {
		operation string
		signature string
		body      []byte
	}
	var (
		mu         sync.Mutex
		deliveries []delivery
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, delivery{
			operation: r.Header.Get("X-Shiftline-Operation"),
			signature: r.Header.Get("X-Shiftline-Signature"),
			body:      data,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{
		URL:        hook.URL,
		Secret:     "hook-secret",
		Operations: []string{audit.OpActivityCreate},
	}}
	e := newEngine(t, cfg)
	ctx := context.Background()
	if _, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{ID: "before", Name: "Before start", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}

	d := newWebhookDispatcher(e)
	if d == nil {
		t.Fatal("expected dispatcher")
	}
	d.dispatchAll(ctx)

	if _, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{ID: "after", Name: "After start", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateCriterion(ctx, engine.CriterionCreateOptions{
		ActivityID: "after", UnitCode: "KG", Value: 5, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(deliveries))
	}
	got := deliveries[0]
	if got.operation != audit.OpActivityCreate {
		t.Fatalf("unexpected operation %s", got.operation)
	}
	if want := "sha256=" + signPayload("hook-secret", got.body); got.signature != want {
		t.Fatalf("signature mismatch: %s vs %s", got.signature, want)
	}
	var entry AuditEntryResponse
	if err := json.Unmarshal(got.body, &entry); err != nil {
		t.Fatal(err)
	}
	if entry.EntityID != "after" || !strings.Contains(string(entry.After), "After start") {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestWebhooksDisabledWithoutConfig(t *testing.T) {
	if d := newWebhookDispatcher(newEngine(t, config.Default())); d != nil {
		t.Fatal("expected no dispatcher without webhooks")
	}
}
