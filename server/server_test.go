package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/auth"
	"github.com/teranos/pulsedesk/channel"
	pdtest "github.com/teranos/pulsedesk/internal/testing"
	"github.com/teranos/pulsedesk/monitor"
	"github.com/teranos/pulsedesk/pulse/async"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *sql.DB
	users    *auth.Store
	auth     *auth.Authenticator
	queue    *async.Queue
	channels *channel.Store
	srv      *Server
	handler  http.Handler
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	database := pdtest.CreateMigratedDB(t)

	f := &fixture{
		db:       database,
		users:    auth.NewStore(database),
		queue:    async.NewQueue(database, async.DefaultQueueConfig()),
		channels: channel.NewStore(database),
	}
	f.auth = auth.NewAuthenticator(f.users, "", nil)

	counter, err := monitor.NewTableCounter(database, "tickets")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	f.srv, err = New(Deps{
		Auth: f.auth,
		Health: monitor.NewHealthAggregator(monitor.Sources{
			Channels: f.channels,
			Jobs:     f.queue,
		}, monitor.DefaultHealthConfig(), nil),
		Amount:   monitor.NewAmountChecker(counter),
		Status:   monitor.NewStatusCollector(database, ""),
		Queue:    f.queue,
		Metrics:  monitor.NewMetrics("pulsedesk", reg),
		Gatherer: reg,
	}, Config{Bind: "127.0.0.1", Port: 3077}, nil)
	require.NoError(t, err)
	f.srv.now = func() time.Time { return t0 }
	f.handler = f.srv.Handler()

	f.token, err = f.auth.MintToken(ctx, t0)
	require.NoError(t, err)

	admin, err := f.users.CreateUser(ctx, "admin", "", "secret", true, t0)
	require.NoError(t, err)
	require.NoError(t, f.users.Grant(ctx, admin.ID, auth.MonitoringPermission))
	_, err = f.users.CreateUser(ctx, "agent", "", "secret", true, t0)
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, setup func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func basic(login, password string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(login, password) }
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthCheckHealthy(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+f.token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, monitor.SuccessMessage, body["message"])
	assert.NotContains(t, body, "issues")
}

func TestHealthCheckReportsIssues(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.channels.Create(context.Background(), &channel.Channel{
		Area: "Email::Account", Active: true, StatusIn: channel.StatusError, LastLogIn: "connection refused",
	}, t0))

	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["healthy"])
	assert.Contains(t, body["message"], "connection refused")
	assert.Len(t, body["issues"], 1)
}

func TestHealthCheckUnauthorized(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"healthy":false,"error":"Not authorized"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, MonitoringPrefix+"/health_check", basic("agent", "secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"healthy":false,"error":"Not authorized (user)!"}`, rec.Body.String())
}

func TestBasicAuthAdminIsEnough(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check", basic("admin", "secret"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenHeader(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check", func(r *http.Request) {
		r.Header.Set("Authorization", "Token token="+f.token)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/status?token="+f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st monitor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Counts["users"])
	assert.Nil(t, st.Storage)

	rec = f.do(t, http.MethodGet, MonitoringPrefix+"/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())
}

func TestTokenRequiresAdminSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, MonitoringPrefix+"/token?token="+f.token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, MonitoringPrefix+"/token", basic("agent", "secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Not authorized (user)!"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, MonitoringPrefix+"/token", basic("admin", "secret"))
	require.Equal(t, http.StatusCreated, rec.Code)
	minted := decode(t, rec)["token"].(string)
	assert.NotEqual(t, f.token, minted)

	rec = f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+minted, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+f.token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/token", basic("admin", "secret"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRestartFailedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		job, err := async.NewJob("ticket.notification", "test", nil, t0.Add(-time.Hour))
		require.NoError(t, err)
		job.Attempts = 25
		job.Status = async.JobStatusFailed
		require.NoError(t, f.queue.Enqueue(ctx, job))
	}

	rec := f.do(t, http.MethodPost, MonitoringPrefix+"/restart_failed_jobs?token="+f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"restarted":3}`, rec.Body.String())

	n, err := f.queue.CountFailing(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAmountCheck(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Exec(`INSERT INTO tickets (number, title, state_id, group_id, priority_id, owner_id, created_at, updated_at, created_by_id, updated_by_id)
		VALUES ('1001', 'a', 1, 1, 2, 1, ?, ?, 1, 1)`, "2026-10-18T08:59:00.000000Z", "2026-10-18T08:59:00.000000Z")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/amount_check?token="+f.token+"&periode=1h&max_warning=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, monitor.StateWarning, body["state"])
	assert.Equal(t, float64(1), body["count"])

	rec = f.do(t, http.MethodGet, MonitoringPrefix+"/amount_check?token="+f.token+"&periode=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitor.StateOK, decode(t, rec)["state"])
}

func TestAmountCheckInvalidInput(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"periode=1x", "periode=", "periode=0m", "periode=1h&min_warning=abc"} {
		rec := f.do(t, http.MethodGet, MonitoringPrefix+"/amount_check?token="+f.token+"&"+q, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, q)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	f.srv.SetRateLimit(0.001, 2)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+f.token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+f.token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// the liveness probe is not limited
	rec = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, MonitoringPrefix+"/health_check?token="+f.token, nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pulsedesk_")
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/health", func(r *http.Request) { r.Header.Set("X-Request-ID", "abc") })
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{}, nil)
	assert.Error(t, err)
}
