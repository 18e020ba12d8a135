package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Giorgio/backend/go/internal/config"
	pkghttp "Giorgio/backend/go/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meteo Roma", req.Query)
		assert.Equal(t, 3, req.MaxResults)
		_ = json.NewEncoder(w).Encode(tavilyResponse{Results: []Result{
			{Title: "a", URL: "https://a"}, {Title: "b"}, {Title: "c"}, {Title: "d"},
		}})
	}))
	defer srv.Close()

	tv, err := NewTavily(config.WebSearchConfig{APIKey: "tvly-key", BaseURL: srv.URL + "/"}, config.CircuitBreakerConfig{})
	require.NoError(t, err)
	res, err := tv.Search(context.Background(), "meteo Roma")
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, "https://a", res[0].URL)
}

func TestTavilyWithoutKey(t *testing.T) {
	tv, err := NewTavily(config.WebSearchConfig{BaseURL: "http://unused"}, config.CircuitBreakerConfig{})
	require.NoError(t, err)
	_, err = tv.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestPageReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Ricetta</h1><p>Usa <strong>basilico</strong> fresco.</p></body></html>`))
	}))
	defer srv.Close()

	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{})
	require.NoError(t, err)
	r := NewPageReader(client)

	md, err := r.Read(context.Background(), srv.URL+"/pesto")
	require.NoError(t, err)
	assert.Contains(t, md, "# Ricetta")
	assert.Contains(t, md, "**basilico**")

	_, err = r.Read(context.Background(), srv.URL+"/missing")
	var se *pkghttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = r.Read(context.Background(), "ftp://example.com")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestPageReaderRejectsInternalAddresses(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("<p>segreto</p>"))
	}))
	defer srv.Close()

	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{},
		pkghttp.WithHTTPClient(NewPublicHTTPClient(5*time.Second)))
	require.NoError(t, err)
	r := NewPageReader(client)

	_, err = r.Read(context.Background(), srv.URL+"/admin")
	assert.ErrorIs(t, err, ErrBlockedAddress)
	_, err = r.Read(context.Background(), fmt.Sprintf("http://localhost:%d/admin", srv.Listener.Addr().(*net.TCPAddr).Port))
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Zero(t, hits)
}

func TestCheckAddress(t *testing.T) {
	blocked := []string{
		"127.0.0.1:80", "[::1]:443", "10.1.2.3:80", "172.16.0.1:80", "192.168.1.1:80",
		"169.254.169.254:80", "[fe80::1]:80", "0.0.0.0:80", "[::]:80", "[fc00::1]:80",
		"[::ffff:127.0.0.1]:80", "224.0.0.1:80", "non-un-ip",
	}
	for _, a := range blocked {
		assert.ErrorIs(t, checkAddress(a), ErrBlockedAddress, a)
	}
	for _, a := range []string{"93.184.216.34:443", "[2606:4700::1111]:443"} {
		assert.NoError(t, checkAddress(a), a)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "ciao", truncateRunes("ciao", 10))
	out := truncateRunes(strings.Repeat("è", 20), 5)
	assert.True(t, strings.HasPrefix(out, "èèèèè"))
	assert.True(t, strings.HasSuffix(out, "[...]"))
}
