package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	h := Handler{Probes: map[string]Probe{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}}
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, map[string]string{"db": "ok", "redis": "connection refused"}, body)

	delete(h.Probes, "redis")
	rr = httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCheckAppliesTimeout(t *testing.T) {
	h := Handler{Timeout: 10 * time.Millisecond, Probes: map[string]Probe{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}
	status, ok := h.Check(context.Background())
	require.False(t, ok)
	require.Equal(t, context.DeadlineExceeded.Error(), status["slow"])

	status, ok = Handler{}.Check(context.Background())
	require.False(t, ok)
	require.Equal(t, "unavailable", status["dependencies"])
}

func TestRouter(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pricing_passes_total 1"))
	})
	h := Handler{Probes: map[string]Probe{"db": func(context.Context) error { return nil }}}
	srv := httptest.NewServer(h.Router(metrics))
	t.Cleanup(srv.Close)

	cases := []struct {
		method, path string
		status       int
		body         string
	}{
		{method: http.MethodGet, path: "/livez", status: http.StatusOK, body: "ok"},
		{method: http.MethodGet, path: "/readyz", status: http.StatusOK, body: `{"db":"ok"}` + "\n"},
		{method: http.MethodGet, path: "/metrics", status: http.StatusOK, body: "pricing_passes_total 1"},
		{method: http.MethodPost, path: "/livez", status: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/quote", status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			require.NoError(t, err)
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				require.Equal(t, tc.body, string(body))
			}
		})
	}

	rr := httptest.NewRecorder()
	h.Router(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
