package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"nettop/internal/config"
	"nettop/internal/engine/ranking"
	"nettop/internal/metrics"
	"nettop/internal/model"
	"nettop/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeQuerier struct {
	got    storage.HistoryQuery
	totals []storage.FlowTotal
	err    error
}

func (q *fakeQuerier) TopFlows(_ context.Context, hq storage.HistoryQuery) ([]storage.FlowTotal, error) {
	q.got = hq
	return q.totals, q.err
}

func (q *fakeQuerier) Close() error { return nil }

func newTestServer(q storage.Querier) (*Server, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log, _ := logtest.NewNullLogger()
	return NewServer(config.APIConfig{}, reg, q, log), m
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTop_BeforeAndAfterFirstReport(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := do(t, s, "/api/v1/top")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	snap := model.Snapshot{{
		Key: model.FlowKey{
			Addr1: netip.MustParseAddr("10.0.0.1"), Port1: 1234,
			Addr2: netip.MustParseAddr("10.0.0.2"), Port2: 80,
			Proto: model.ProtocolTCP,
		},
		Stats: model.FlowStats{BytesTx: 150, PacketsTx: 2, BytesRx: 200, PacketsRx: 1},
	}}
	require.NoError(t, s.Write(&model.Report{
		Sequence:  1,
		Interface: "eth0",
		Timestamp: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Interval:  time.Second,
		Mode:      model.SortBytes,
		Rows:      ranking.Render(snap, model.SortBytes, time.Second, 10),
	}))

	rec = do(t, s, "/api/v1/top")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc struct {
		Interface string `json:"interface"`
		Rows      []struct {
			Src    string `json:"src"`
			TxBits string `json:"tx_bits"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "eth0", doc.Interface)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, "10.0.0.1:1234", doc.Rows[0].Src)
	assert.Equal(t, "1.2K", doc.Rows[0].TxBits)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := do(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"collecting"}`, rec.Body.String())

	require.NoError(t, s.Write(&model.Report{}))
	rec = do(t, s, "/healthz")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s, m := newTestServer(nil)
	m.ObservePacket(metrics.ResultDecoded, 100)

	rec := do(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nettop_packets_total{result="decoded"} 1`)
	assert.Contains(t, rec.Body.String(), "nettop_bytes_total 100")
}

func TestHistory(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s, _ := newTestServer(nil)
		assert.Equal(t, http.StatusNotFound, do(t, s, "/api/v1/history").Code)
	})

	t.Run("query parameters", func(t *testing.T) {
		q := &fakeQuerier{totals: []storage.FlowTotal{{Addr1: "10.0.0.1", Port1: 1234, Addr2: "10.0.0.2", Port2: 80, Protocol: "tcp", Bytes: 350}}}
		s, _ := newTestServer(q)

		rec := do(t, s, "/api/v1/history?interface=eth0&since=2026-10-19T00:00:00Z&limit=3")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "eth0", q.got.Interface)
		assert.Equal(t, 3, q.got.Limit)
		assert.True(t, q.got.Since.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)))
		assert.True(t, q.got.Until.IsZero())

		var totals []storage.FlowTotal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
		require.Len(t, totals, 1)
		assert.Equal(t, uint64(350), totals[0].Bytes)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		s, _ := newTestServer(&fakeQuerier{})
		rec := do(t, s, "/api/v1/history")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("bad parameters", func(t *testing.T) {
		s, _ := newTestServer(&fakeQuerier{})
		assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/v1/history?since=yesterday").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/v1/history?limit=0").Code)
	})

	t.Run("query failure", func(t *testing.T) {
		s, _ := newTestServer(&fakeQuerier{err: errors.New("timeout")})
		assert.Equal(t, http.StatusInternalServerError, do(t, s, "/api/v1/history").Code)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/top", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthService(t *testing.T) {
	s, _ := newTestServer(nil)
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	s.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	require.NoError(t, s.Close())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
