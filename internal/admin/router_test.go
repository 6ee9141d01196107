package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/sharechat/internal/chat"
	"github.com/wtask/sharechat/internal/chat/catalog"
	"github.com/wtask/sharechat/internal/metrics"
)

type fakeSource struct {
	sessions []chat.SessionInfo
	files    []catalog.Entry
}

func (f fakeSource) Sessions() []chat.SessionInfo { return f.sessions }
func (f fakeSource) Files() []catalog.Entry       { return f.files }

func newSource() fakeSource {
	at := time.Date(2024, 5, 1, 9, 8, 7, 0, time.UTC)
	return fakeSource{
		sessions: []chat.SessionInfo{
			{ID: "id-1", Name: "alice", Address: "127.0.0.1:4000", State: "active", ConnectedAt: at},
			{Address: "127.0.0.1:4001", State: "connecting", ConnectedAt: at},
		},
		files: []catalog.Entry{
			{Name: "a.txt", Size: 5, Uploader: "alice", UploadedAt: at},
		},
	}
}

func get(test *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	test.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(test *testing.T) {
	w := get(test, NewRouter(newSource(), nil), "/health")
	require.Equal(test, http.StatusOK, w.Code)
	assert.Equal(test, "application/json", w.Header().Get("Content-Type"))

	var resp Response
	require.NoError(test, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(test, "healthy", resp.Status)
	data, ok := resp.Data.(map[string]interface{})
	require.True(test, ok)
	assert.Equal(test, "sharechat", data["service"])
	assert.Equal(test, float64(2), data["connections"])
}

func TestUsers(test *testing.T) {
	w := get(test, NewRouter(newSource(), nil), "/api/v1/users")
	require.Equal(test, http.StatusOK, w.Code)

	var resp struct {
		Status string             `json:"status"`
		Data   []chat.SessionInfo `json:"data"`
	}
	require.NoError(test, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(test, "ok", resp.Status)
	require.Len(test, resp.Data, 2)
	assert.Equal(test, "alice", resp.Data[0].Name)
	assert.Equal(test, "connecting", resp.Data[1].State)
}

func TestFiles(test *testing.T) {
	w := get(test, NewRouter(newSource(), nil), "/api/v1/files")
	require.Equal(test, http.StatusOK, w.Code)

	var resp struct {
		Data []catalog.Entry `json:"data"`
	}
	require.NoError(test, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(test, resp.Data, 1)
	assert.Equal(test, "a.txt", resp.Data[0].Name)
	assert.Equal(test, int64(5), resp.Data[0].Size)
}

func TestMetrics(test *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionJoined()

	w := get(test, NewRouter(newSource(), reg), "/metrics")
	require.Equal(test, http.StatusOK, w.Code)
	assert.Contains(test, w.Body.String(), "sharechat_sessions_active 1")

	w = get(test, NewRouter(newSource(), nil), "/metrics")
	assert.Equal(test, http.StatusNotFound, w.Code)
}

func TestServer_ServeAndStop(test *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	srv := NewServer(l.Addr().String(), newSource(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	require.NoError(test, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(test, err)
	assert.True(test, strings.Contains(string(body), `"healthy"`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(test, err)
	case <-time.After(5 * time.Second):
		test.Fatal("admin server did not stop")
	}
	assert.NoError(test, srv.Stop(context.Background()))
}
