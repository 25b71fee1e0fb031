package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/jonathan/closing-engine/internal/config"
	"github.com/jonathan/closing-engine/internal/db"
	"github.com/jonathan/closing-engine/internal/server/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

type fakeExecutor struct {
	outcome  *closing.ExecutionOutcome
	err      error
	req      *closing.ExecutionRequest
	actor    string
	override bool
}

func (f *fakeExecutor) Execute(_ context.Context, req *closing.ExecutionRequest, actor string, override bool) (*closing.ExecutionOutcome, error) {
	f.req, f.actor, f.override = req, actor, override
	return f.outcome, f.err
}

type fakeReader struct {
	processes     []closing.ProcessDefinition
	history       []closing.HistoryEntry
	err           error
	processFilter closing.ProcessFilter
	historyFilter closing.HistoryFilter
}

func (f *fakeReader) ListProcesses(_ context.Context, filter closing.ProcessFilter) ([]closing.ProcessDefinition, error) {
	f.processFilter = filter
	return f.processes, f.err
}

func (f *fakeReader) ListHistory(_ context.Context, filter closing.HistoryFilter) ([]closing.HistoryEntry, error) {
	f.historyFilter = filter
	return f.history, f.err
}

type fakeOperatorStore struct {
	operators map[string]*db.Operator
	err       error
}

func (f *fakeOperatorStore) GetOperatorByLogin(_ context.Context, login string) (*db.Operator, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.operators[login], nil
}

func (f *fakeOperatorStore) CreateOperator(_ context.Context, login, name, hash string, canOverride bool) (*db.Operator, error) {
	if _, ok := f.operators[login]; ok {
		return nil, db.ErrOperatorExists
	}
	op := &db.Operator{Login: login, Name: name, PasswordHash: hash, CanOverride: canOverride, Active: true}
	f.operators[login] = op
	return op, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	server    *Server
	executor  *fakeExecutor
	reader    *fakeReader
	operators *fakeOperatorStore
	tokens    *JWTService
	logs      *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	passwords := &config.PasswordConfig{BcryptCost: 10}
	store := &fakeOperatorStore{operators: map[string]*db.Operator{}}
	operators := NewOperatorService(store, passwords)
	_, err := operators.Create(context.Background(), "ana", "Ana", "ana-password", true)
	require.NoError(t, err)
	_, err = operators.Create(context.Background(), "bob", "Bob", "bob-password", false)
	require.NoError(t, err)

	tokens := NewJWTService(&config.JWTConfig{Secret: testSecret, ExpirationHours: 1, Issuer: "closing-engine"})
	ts := &testServer{
		executor:  &fakeExecutor{},
		reader:    &fakeReader{},
		operators: store,
		tokens:    tokens,
		logs:      hook,
	}
	ts.server = New(Config{Port: 0}, Deps{
		Executor:  ts.executor,
		Reader:    ts.reader,
		Operators: operators,
		Tokens:    tokens,
		Logger:    logger,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, operator string, override bool) string {
	t.Helper()
	token, err := ts.tokens.GenerateToken(operator, override)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	ts.server.health = fakePinger{err: errors.New("connection refused")}
	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodOptions, "/processes/execute", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestProcessRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/processes?category=UNI&data_type=U"},
		{http.MethodGet, "/processes/history?category=UNI&code=P1&month=12&year=2024"},
		{http.MethodPost, "/processes/execute"},
	} {
		w := ts.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)

		w = ts.do(t, route.method, route.path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
	assert.Nil(t, ts.executor.req)
}

func TestListProcesses(t *testing.T) {
	ts := newTestServer(t)
	ts.reader.processes = []closing.ProcessDefinition{
		{Code: "P1", Category: "UNI", DataType: "U", Order: 1, GracePeriodDays: 5, Active: true},
	}

	w := ts.do(t, http.MethodGet, "/processes?category=UNI&data_type=U&month=12&year=2024", ts.token(t, "bob", false), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, closing.ProcessFilter{Category: "UNI", DataType: "U", Month: 12, Year: 2024}, ts.reader.processFilter)

	var got []closing.ProcessDefinition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, ts.reader.processes, got)
}

func TestListProcesses_Errors(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "bob", false)

	w := ts.do(t, http.MethodGet, "/processes?category=UNI&data_type=U&month=dez&year=2024", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Contains(t, body["message"], "month: must be an integer")

	ts.reader.err = &closing.PeriodNotFoundError{Period: closing.Period{Month: 12, Year: 2024}}
	w = ts.do(t, http.MethodGet, "/processes?category=UNI&data_type=U&month=12&year=2024", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "closing period not found for 12/2024", decodeError(t, w)["message"])

	ts.reader.err = &closing.InfrastructureError{Op: "list processes", Cause: errors.New("timeout")}
	w = ts.do(t, http.MethodGet, "/processes?category=UNI&data_type=U", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.reader.history = []closing.HistoryEntry{{Category: "UNI", ProcessCode: "P1", Month: 12, Year: 2024}}

	w := ts.do(t, http.MethodGet, "/processes/history?category=UNI&code=P1&month=12&year=2024", ts.token(t, "bob", false), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, closing.HistoryFilter{Category: "UNI", Code: "P1", Month: 12, Year: 2024}, ts.reader.historyFilter)
	assert.Contains(t, w.Body.String(), `"process_code":"P1"`)
}

func TestExecute_IdentityComesFromToken(t *testing.T) {
	ts := newTestServer(t)
	ts.executor.outcome = &closing.ExecutionOutcome{
		BatchID:   "batch-1",
		Succeeded: []string{"P1"},
		Failed:    []closing.Failure{{Code: "P2", Error: "carrier table locked"}},
	}

	body := `{"category":"UNI","data_type":"U","month":12,"year":2024,"process_codes":["P1","P2"],"override":true,"company":"ALL"}`
	w := ts.do(t, http.MethodPost, "/processes/execute", ts.token(t, "bob", false), body)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "bob", ts.executor.actor)
	assert.False(t, ts.executor.override, "the body must not grant override")
	assert.Equal(t, []string{"P1", "P2"}, ts.executor.req.ProcessCodes)
	assert.Equal(t, "ALL", ts.executor.req.Company)

	var resp ExecuteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "batch-1", resp.BatchID)
	assert.Equal(t, "Execution completed: 1 success(es), 1 error(s)", resp.SummaryMessage)
	assert.Equal(t, []closing.Failure{{Code: "P2", Error: "carrier table locked"}}, resp.Failed)

	ts.do(t, http.MethodPost, "/processes/execute", ts.token(t, "ana", true), body)
	assert.Equal(t, "ana", ts.executor.actor)
	assert.True(t, ts.executor.override)
}

func TestExecute_ErrorMapping(t *testing.T) {
	period := closing.Period{Month: 12, Year: 2024}
	tests := []struct {
		name       string
		err        error
		outcome    *closing.ExecutionOutcome
		wantStatus int
		wantDetail string
	}{
		{
			name:       "request shape",
			err:        &closing.RequestShapeError{Fields: []closing.FieldError{{Field: "process_codes", Message: "is required"}}},
			wantStatus: http.StatusBadRequest,
			wantDetail: "process_codes",
		},
		{
			name:       "deadline",
			err:        &closing.DeadlineViolationError{Invalid: []closing.InvalidProcess{{Code: "P2", Reason: "past deadline"}}},
			wantStatus: http.StatusBadRequest,
			wantDetail: "P2",
		},
		{name: "process not found", err: &closing.ProcessNotFoundError{Code: "X"}, wantStatus: http.StatusBadRequest},
		{name: "period busy", err: &closing.PeriodBusyError{Category: "UNI", Period: period}, wantStatus: http.StatusConflict},
		{
			name:       "infrastructure with partial outcome",
			err:        &closing.InfrastructureError{Op: "find process", Cause: errors.New("conn reset")},
			outcome:    &closing.ExecutionOutcome{BatchID: "b", Succeeded: []string{"P1"}, Failed: []closing.Failure{}},
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: `"succeeded":["P1"]`,
		},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.executor.err = tt.err
			ts.executor.outcome = tt.outcome

			w := ts.do(t, http.MethodPost, "/processes/execute", ts.token(t, "bob", false),
				`{"category":"UNI","data_type":"U","month":12,"year":2024,"process_codes":["P1"]}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantDetail != "" {
				assert.Contains(t, w.Body.String(), tt.wantDetail)
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "boom")
			}
		})
	}
}

func TestExecute_BadBody(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "bob", false)

	w := ts.do(t, http.MethodPost, "/processes/execute", token, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decodeError(t, w)["message"])

	w = ts.do(t, http.MethodPost, "/processes/execute", token, `{"month":"december"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "month")
	assert.Nil(t, ts.executor.req)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Login: "ana", Password: "ana-password"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ana", resp.Operator)
	assert.True(t, resp.Override)

	claims, err := ts.tokens.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Operator)
	assert.True(t, claims.Override)
}

func TestLogin_Failures(t *testing.T) {
	ts := newTestServer(t)
	ts.operators.operators["carl"] = &db.Operator{Login: "carl", Active: false}

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"wrong password", LoginRequest{Login: "ana", Password: "nope"}, http.StatusUnauthorized},
		{"unknown operator", LoginRequest{Login: "zoe", Password: "x"}, http.StatusUnauthorized},
		{"inactive operator", LoginRequest{Login: "carl", Password: "x"}, http.StatusUnauthorized},
		{"missing password", LoginRequest{Login: "ana"}, http.StatusBadRequest},
		{"malformed body", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/auth/login", "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "token")
		})
	}

	ts.operators.err = errors.New("db down")
	w := ts.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Login: "ana", Password: "ana-password"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.server = New(Config{RateLimit: ratelimit.NewConfig(config.RateLimitConfig{Enabled: true, ReadPerMinute: 1})}, Deps{
		Executor:  ts.executor,
		Reader:    ts.reader,
		Operators: NewOperatorService(ts.operators, &config.PasswordConfig{BcryptCost: 10}),
		Tokens:    ts.tokens,
	})
	token := ts.token(t, "bob", false)

	w := ts.do(t, http.MethodGet, "/processes?category=UNI&data_type=U", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/processes?category=UNI&data_type=U", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Health stays reachable.
	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLogging(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/health", "", nil)

	var found bool
	for _, entry := range ts.logs.AllEntries() {
		if entry.Message == "request completed" && entry.Data["path"] == "/health" {
			found = true
			assert.Equal(t, http.StatusOK, entry.Data["status"])
		}
	}
	assert.True(t, found, "expected a request log entry")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(&ErrInvalidCredentials{}))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(&ErrBadRequest{Message: "x"}))
	assert.Equal(t, http.StatusConflict, HTTPStatus(&closing.PeriodBusyError{}))
	wrapped := errors.Join(errors.New("context"), &closing.InfrastructureError{Op: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(wrapped))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
