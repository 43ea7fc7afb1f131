package rootserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/backplane/internal/config"
	"github.com/specialistvlad/backplane/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, res *http.Response) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestServer_UseAndServe(t *testing.T) {
	s := New(nil, config.ListenSettings{}, nil)

	r := chi.NewRouter()
	r.Get("/hello", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "hi") })
	require.NoError(t, s.Use("/api/greeter", r))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/greeter/hello", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestServer_UseConflicts(t *testing.T) {
	s := New(nil, config.ListenSettings{}, prometheus.NewRegistry())
	h := http.NotFoundHandler()

	require.NoError(t, s.Use("api/a", h))
	assert.Error(t, s.Use("/api/a", h))
	assert.Error(t, s.Use("/api/a/nested", h))
	assert.Error(t, s.Use("/api", h))
	assert.Error(t, s.Use("/", h))
	assert.Error(t, s.Use("/metrics", h))
	assert.Error(t, s.Use("/api/b", nil))
	assert.Equal(t, []string{"/api/a", "/metrics"}, s.Mounts())
}

func TestServer_JSONErrors(t *testing.T) {
	s := New(nil, config.ListenSettings{}, nil)
	r := chi.NewRouter()
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	r.Get("/teapot", func(http.ResponseWriter, *http.Request) {
		panic(&HTTPError{Status: http.StatusTeapot, Name: "TeapotError", Message: "short and stout"})
	})
	require.NoError(t, s.Use("/api/x", r))

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		s.ServeHTTP(rec, req)

		res := rec.Result()
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
		body := decodeError(t, res)
		assert.Equal(t, "NotFoundError", body.Error.Name)
		assert.Equal(t, "req-1", body.Request.ID)
		assert.Equal(t, "/nowhere", body.Request.URL)
	})

	t.Run("panic hides message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x/boom", nil))
		res := rec.Result()
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		body := decodeError(t, res)
		assert.NotContains(t, body.Error.Message, "kaboom")
	})

	t.Run("http error panic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x/teapot", nil))
		res := rec.Result()
		assert.Equal(t, http.StatusTeapot, res.StatusCode)
		assert.Equal(t, "short and stout", decodeError(t, res).Error.Message)
	})
}

func TestServer_StartPortStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"}))
	s := New(nil, config.ListenSettings{Host: "127.0.0.1", Port: 0}, reg)

	_, err := s.Port()
	assert.ErrorIs(t, err, errdefs.ErrServerNotStarted)
	_, err = s.Addr()
	assert.ErrorIs(t, err, errdefs.ErrServerNotStarted)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { _ = s.Stop(ctx) })
	assert.Error(t, s.Start(ctx))

	port, err := s.Port()
	require.NoError(t, err)
	assert.NotZero(t, port)

	res, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "probe_total")

	require.NoError(t, s.Stop(ctx))
	_, err = s.Port()
	assert.ErrorIs(t, err, errdefs.ErrServerNotStarted)
	require.NoError(t, s.Stop(ctx))
}

func TestPluginRouter(t *testing.T) {
	s := New(nil, config.ListenSettings{}, nil)
	pr := s.ForPlugin("catalog")
	assert.Equal(t, "/api/catalog", pr.Path())

	require.NoError(t, pr.Use(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Path)
	})))
	require.NoError(t, pr.Use(http.NotFoundHandler()))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/entities", nil))
	assert.Equal(t, "/entities", rec.Body.String())

	assert.Error(t, s.ForPlugin("catalog").Use(http.NotFoundHandler()))
}

func TestServer_MountWhileServing(t *testing.T) {
	s := New(nil, config.ListenSettings{Host: "127.0.0.1", Port: 0}, nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { _ = s.Stop(ctx) })
	port, err := s.Port()
	require.NoError(t, err)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{Timeout: 2 * time.Second}

	release := make(chan struct{})
	mounted := make(chan error, 1)
	inner := make(chan int, 1)

	r := chi.NewRouter()
	r.Get("/inner", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "inner") })
	r.Get("/outer", func(w http.ResponseWriter, _ *http.Request) {
		go func() { mounted <- s.Use("/late", http.NotFoundHandler()) }()

		res, err := client.Get(base + "/api/self/inner")
		if err != nil {
			inner <- 0
		} else {
			res.Body.Close()
			inner <- res.StatusCode
		}
		<-release
		fmt.Fprint(w, "outer")
	})
	require.NoError(t, s.Use("/api/self", r))

	outer := make(chan int, 1)
	go func() {
		res, err := http.Get(base + "/api/self/outer")
		if err != nil {
			outer <- 0
			return
		}
		res.Body.Close()
		outer <- res.StatusCode
	}()

	assert.Equal(t, http.StatusOK, <-inner)
	select {
	case err := <-mounted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mount blocked behind an in-flight request")
	}
	assert.Contains(t, s.Mounts(), "/late")

	close(release)
	assert.Equal(t, http.StatusOK, <-outer)
}
