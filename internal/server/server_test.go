package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kafkarouter/internal/router"
	"kafkarouter/internal/rules"
	"kafkarouter/pkg/types"
)

type fixedState router.State

func (s fixedState) State() router.State { return router.State(s) }

func testTable(t *testing.T) *rules.RouteTable {
	t.Helper()
	table, err := rules.Load([]types.RuleDefinition{
		{Key: "KAFKA_ROUTER_RULE_B", Document: `{"source_topic":"in","destination_topic":"b"}`},
		{Key: "KAFKA_ROUTER_RULE_A", Document: `{"source_topic":"in","destination_topic":"a","regexp":"^x"}`},
	}, "dlq", zerolog.Nop())
	require.NoError(t, err)
	return table
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state router.State
		code  int
	}{
		{router.Starting, http.StatusOK},
		{router.Running, http.StatusOK},
		{router.Draining, http.StatusServiceUnavailable},
		{router.Stopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			s := New(0, nil, fixedState(tt.state), testTable(t), zerolog.Nop())
			rec := get(t, s.Handler(), "/healthz")

			assert.Equal(t, tt.code, rec.Code)
			var body healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.state.String(), body.State)
		})
	}
}

func TestRulesListing(t *testing.T) {
	s := New(0, nil, fixedState(router.Running), testTable(t), zerolog.Nop())
	rec := get(t, s.Handler(), "/rules")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body []ruleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, 1, body[0].Order)
	assert.Equal(t, "A", body[0].Rule["name"])
	assert.Equal(t, "^x", body[0].Rule["body_regexp"])
	assert.Equal(t, "B", body[1].Rule["name"])
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "router_metric 1\n")
	})
	s := New(0, metrics, fixedState(router.Running), testTable(t), zerolog.Nop())

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "router_metric 1\n", rec.Body.String())

	withoutMetrics := New(0, nil, fixedState(router.Running), testTable(t), zerolog.Nop())
	assert.Equal(t, http.StatusNotFound, get(t, withoutMetrics.Handler(), "/metrics").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(0, nil, fixedState(router.Running), testTable(t), zerolog.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	s := New(0, nil, fixedState(router.Running), testTable(t), zerolog.Nop())
	require.NoError(t, s.Start())

	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%s/healthz", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
