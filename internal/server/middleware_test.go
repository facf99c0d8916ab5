package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/auth"
	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/observability"
	"github.com/PaulBabatuyi/FileVault/internal/server"
	"github.com/PaulBabatuyi/FileVault/internal/service"
	"github.com/PaulBabatuyi/FileVault/internal/storage"
)

func TestRequestMetricsLabelByRoutePattern(t *testing.T) {
	store := database.NewMemoryStore()
	creds := auth.NewMemoryStore()
	creds.Put("tok-alice", "alice")

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := service.New(creds, store, storage.NewMemoryStore(), store,
		zap.NewNop(), metrics, 20)
	handler := server.NewHandler(svc, zap.NewNop())

	ts := httptest.NewServer(server.NewRouter(handler, zap.NewNop(), metrics))
	defer ts.Close()

	var ids []string
	for i := 0; i < 2; i++ {
		resp := doJSON(t, ts, http.MethodPost, "/files", "tok-alice",
			map[string]any{"name": "d", "type": "folder"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		ids = append(ids, decode[fileJSON](t, resp).ID)
	}

	resp := doJSON(t, ts, http.MethodGet, "/files/"+ids[0], "tok-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	series := testutil.CollectAndCount(metrics.RequestDuration)

	// A second id on the same route must reuse the existing series.
	resp = doJSON(t, ts, http.MethodGet, "/files/"+ids[1], "tok-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, series, testutil.CollectAndCount(metrics.RequestDuration),
		"per-id series would grow without bound")
}
