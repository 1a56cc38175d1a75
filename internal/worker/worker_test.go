// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/swcache/internal/store"
)

func TestNew(t *testing.T) {
	s := store.NewMemory()
	n := newFakeNetwork()

	tests := []struct {
		name    string
		version string
		origin  string
		storage store.Storage
		network Fetcher
		wantErr string
	}{
		{name: "ok", version: "v1", origin: testOrigin, storage: s, network: n},
		{name: "empty version", version: "", origin: testOrigin, storage: s, network: n, wantErr: "version tag"},
		{name: "relative origin", version: "v1", origin: "/just/a/path", storage: s, network: n, wantErr: "absolute URL"},
		{name: "bad origin", version: "v1", origin: "http://[::1", storage: s, network: n, wantErr: "failed to parse origin"},
		{name: "no storage", version: "v1", origin: testOrigin, network: n, wantErr: "storage"},
		{name: "no network", version: "v1", origin: testOrigin, storage: s, wantErr: "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.version, tt.origin, tt.storage, tt.network)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateParsed, w.State())
			assert.Equal(t, DefaultPrecache, w.Precache())
			assert.Equal(t, "http://localhost:8080", w.Origin())
		})
	}
}

func TestWorker_Intercepts(t *testing.T) {
	w := newTestWorker(t, "v1", store.NewMemory(), newFakeNetwork())

	tests := []struct {
		name   string
		method string
		target string
		mutate func(*http.Request)
		want   bool
	}{
		{name: "same origin GET", method: http.MethodGet, target: "http://localhost:8080/index.html", want: true},
		{name: "root", method: http.MethodGet, target: "http://localhost:8080/", want: true},
		{name: "query string", method: http.MethodGet, target: "http://localhost:8080/js/main.js?v=3", want: true},
		{name: "POST", method: http.MethodPost, target: "http://localhost:8080/index.html", want: false},
		{name: "HEAD", method: http.MethodHead, target: "http://localhost:8080/index.html", want: false},
		{name: "foreign host", method: http.MethodGet, target: "http://cdn.example.com/logo.png", want: false},
		{name: "foreign port", method: http.MethodGet, target: "http://localhost:9090/", want: false},
		{name: "foreign scheme", method: http.MethodGet, target: "https://localhost:8080/", want: false},
		{name: "api prefix", method: http.MethodGet, target: "http://localhost:8080/api/weather", want: false},
		{name: "api lookalike", method: http.MethodGet, target: "http://localhost:8080/apis.html", want: true},
		{
			name:   "forwarded https",
			method: http.MethodGet,
			target: "/index.html",
			mutate: func(r *http.Request) {
				r.Host = "localhost:8080"
				r.Header.Set("X-Forwarded-Proto", "https")
			},
			want: false,
		},
		{
			name:   "server side path",
			method: http.MethodGet,
			target: "/index.html",
			mutate: func(r *http.Request) { r.Host = "localhost:8080" },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(tt.method, tt.target)
			if tt.mutate != nil {
				tt.mutate(req)
			}
			assert.Equal(t, tt.want, w.Intercepts(req))
		})
	}
}

func TestWorker_Intercepts_DefaultPort(t *testing.T) {
	w, err := New("v1", "https://example.com", store.NewMemory(), newFakeNetwork())
	require.NoError(t, err)

	req := newRequest(http.MethodGet, "/")
	req.Host = "example.com:443"
	req.TLS = &tls.ConnectionState{}
	assert.True(t, w.Intercepts(req))
}

func TestWorker_Intercepts_NoAPIPrefix(t *testing.T) {
	w := newTestWorker(t, "v1", store.NewMemory(), newFakeNetwork(), WithAPIPrefix(""))
	assert.True(t, w.Intercepts(newRequest(http.MethodGet, "http://localhost:8080/api/weather")))
}

func TestRequestURL(t *testing.T) {
	req := newRequest(http.MethodGet, "/a/b?c=d")
	req.Host = "site.test"
	assert.Equal(t, "http://site.test/a/b?c=d", RequestURL(req).String())

	req.Header.Set("X-Forwarded-Proto", "HTTPS, http")
	assert.Equal(t, "https://site.test/a/b?c=d", RequestURL(req).String())

	abs := newRequest(http.MethodGet, "http://localhost:8080/x#frag")
	assert.Equal(t, "http://localhost:8080/x", RequestURL(abs).String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "parsed", StateParsed.String())
	assert.Equal(t, "installing", StateInstalling.String())
	assert.Equal(t, "installed", StateInstalled.String())
	assert.Equal(t, "activating", StateActivating.String())
	assert.Equal(t, "activated", StateActivated.String())
	assert.Equal(t, "redundant", StateRedundant.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestInstall_PrecachesManifest(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	n := newFakeNetwork()
	for _, p := range DefaultPrecache {
		n.serve(p, http.StatusOK, "text/plain", "body of "+p)
	}
	w := newTestWorker(t, "v1", s, n)

	report := w.Install(ctx)
	assert.Equal(t, StateInstalled, w.State())
	assert.Equal(t, "v1", report.Cache)
	assert.Len(t, report.Stored, len(DefaultPrecache))
	assert.Empty(t, report.Failed)

	for _, p := range DefaultPrecache {
		e, ok := cached(t, s, "v1", "GET http://localhost:8080"+p)
		if assert.True(t, ok, p) {
			assert.Equal(t, "body of "+p, string(e.Body))
			assert.Equal(t, http.StatusOK, e.Status)
		}
	}
}

func TestInstall_ToleratesFailures(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	n := newFakeNetwork()
	n.serve("/", http.StatusOK, "text/html", "root")
	n.serve("/index.html", http.StatusOK, "text/html", "index")
	n.serve("/logo.png", http.StatusNotFound, "text/plain", "missing")
	// "/favicon.ico" is unrouted and fails like a network error.

	w := newTestWorker(t, "v1", s, n, WithPrecache("/", "/index.html", "/favicon.ico", "/logo.png"))
	report := w.Install(ctx)

	assert.Equal(t, []string{"/", "/index.html"}, report.Stored)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "/favicon.ico", report.Failed[0].URL)
	assert.Contains(t, report.Failed[0].Error, "connection refused")
	assert.Equal(t, "/logo.png", report.Failed[1].URL)
	assert.Contains(t, report.Failed[1].Error, "404")

	_, ok := cached(t, s, "v1", "GET http://localhost:8080/index.html")
	assert.True(t, ok)
	_, ok = cached(t, s, "v1", "GET http://localhost:8080/logo.png")
	assert.False(t, ok)
}

func TestInstall_OpenFailure(t *testing.T) {
	s := &brokenStorage{Storage: store.NewMemory(), openErr: errors.New("disk full")}
	w := newTestWorker(t, "v1", s, newFakeNetwork(), WithPrecache("/", "/index.html"))

	report := w.Install(context.Background())
	assert.Equal(t, StateInstalled, w.State())
	assert.Empty(t, report.Stored)
	assert.Len(t, report.Failed, 2)
}

func TestInstall_PutFailure(t *testing.T) {
	n := newFakeNetwork()
	n.serve("/", http.StatusOK, "text/html", "root")
	s := &brokenStorage{Storage: store.NewMemory(), putErr: errors.New("quota exceeded")}
	w := newTestWorker(t, "v1", s, n, WithPrecache("/"))

	report := w.Install(context.Background())
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Error, "quota exceeded")
}

func TestActivate_DeletesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	for _, name := range []string{"site-v1", "site-v2", "other-app"} {
		_, err := s.Open(ctx, name)
		require.NoError(t, err)
	}

	w := newTestWorker(t, "site-v2", s, newFakeNetwork())
	report := w.Activate(ctx)

	assert.Equal(t, StateActivated, w.State())
	assert.Equal(t, []string{"other-app", "site-v1"}, report.Deleted)
	assert.Empty(t, report.Failed)

	names, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"site-v2"}, names)
}

func TestActivate_Failures(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, _ = mem.Open(ctx, "v1")
	_, _ = mem.Open(ctx, "v2")

	t.Run("list failure", func(t *testing.T) {
		w := newTestWorker(t, "v2", &brokenStorage{Storage: mem, keysErr: errors.New("boom")}, newFakeNetwork())
		report := w.Activate(ctx)
		assert.Equal(t, StateActivated, w.State())
		assert.Empty(t, report.Deleted)
		assert.Len(t, report.Failed, 1)
	})

	t.Run("delete failure", func(t *testing.T) {
		w := newTestWorker(t, "v2", &brokenStorage{Storage: mem, deleteErr: errors.New("denied")}, newFakeNetwork())
		report := w.Activate(ctx)
		assert.Equal(t, StateActivated, w.State())
		assert.Empty(t, report.Deleted)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, "v1", report.Failed[0].URL)
	})
}

func TestScenario_VersionUpgrade(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	n := newFakeNetwork()
	n.serve("/", http.StatusOK, "text/html", "root")

	v1 := newTestWorker(t, "v1", s, n, WithPrecache("/"))
	v1.Install(ctx)
	v1.Activate(ctx)

	v2 := newTestWorker(t, "v2", s, n, WithPrecache("/"))
	v2.Install(ctx)

	names, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names, "both generations exist until activation")

	v2.Activate(ctx)
	names, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)
}

func TestWorker_MarkRedundant(t *testing.T) {
	w := newTestWorker(t, "v1", store.NewMemory(), newFakeNetwork())
	w.MarkRedundant()
	assert.Equal(t, StateRedundant, w.State())
	assert.Equal(t, "worker(v1, redundant)", w.String())
}

func TestWithClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := store.NewMemory()
	n := newFakeNetwork()
	n.serve("/", http.StatusOK, "text/html", "root")

	w := newTestWorker(t, "v1", s, n, WithPrecache("/"), WithClock(func() time.Time { return fixed }), WithConcurrency(1))
	w.Install(ctx)

	e, ok := cached(t, s, "v1", "GET http://localhost:8080/")
	require.True(t, ok)
	assert.True(t, fixed.Equal(e.StoredAt))
}
