package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(addrs ...string) Config {
	cfg := DefaultCfg()
	cfg.ListenAddr = addrs
	return cfg
}

func echoPath(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, r.URL.Path)
}

func startServer(t *testing.T, options ...Option) *Server {
	s, err := NewServer(context.Background(), options...)
	require.NoError(t, err)
	router := s.Router()
	router.Get("/*", echoPath)
	router.Head("/*", echoPath)
	s.Serve()
	t.Cleanup(func() {
		assert.NoError(t, s.Shutdown())
	})
	return s
}

func get(t *testing.T, method, url string) (*http.Response, string) {
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestDefaultCfg(t *testing.T) {
	cfg := DefaultCfg()
	assert.Equal(t, []string{"0.0.0.0:8000"}, cfg.ListenAddr)
	assert.Equal(t, "*", cfg.AllowOrigin)
	assert.Equal(t, "", cfg.BaseURL)
}

func TestServerServes(t *testing.T) {
	s := startServer(t, WithConfig(testConfig("127.0.0.1:0")))
	urls := s.URLs()
	require.Len(t, urls, 1)
	assert.True(t, strings.HasPrefix(urls[0], "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(urls[0], "/"))

	resp, body := get(t, "GET", urls[0]+"dir/file.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/dir/file.txt", body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerMultipleListeners(t *testing.T) {
	s := startServer(t, WithConfig(testConfig("127.0.0.1:0", "127.0.0.1:0")))
	urls := s.URLs()
	require.Len(t, urls, 2)
	assert.NotEqual(t, urls[0], urls[1])
	for _, url := range urls {
		resp, body := get(t, "GET", url+"x")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/x", body)
	}
}

func TestServerBindFails(t *testing.T) {
	s := startServer(t, WithConfig(testConfig("127.0.0.1:0")))
	addr := strings.TrimSuffix(strings.TrimPrefix(s.URLs()[0], "http://"), "/")

	_, err := NewServer(context.Background(), WithConfig(testConfig(addr)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)

	// the first server is unaffected
	resp, _ := get(t, "GET", s.URLs()[0])
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerBindFailsClosesEarlierListeners(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() {
		_ = l.Close()
	}()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	freeAddr := free.Addr().String()
	require.NoError(t, free.Close())

	_, err = NewServer(context.Background(), WithConfig(testConfig(freeAddr, l.Addr().String())))
	require.Error(t, err)

	// freeAddr must have been released again
	again, err := net.Listen("tcp", freeAddr)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestServerNoListeners(t *testing.T) {
	_, err := NewServer(context.Background(), WithConfig(testConfig()))
	assert.True(t, errors.Is(err, ErrNoListeners))
}

func TestServerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewServer(ctx, WithConfig(testConfig("127.0.0.1:0")))
	assert.Equal(t, context.Canceled, err)
}

func TestServerErrorsHaveCORS(t *testing.T) {
	s, err := NewServer(context.Background(), WithConfig(testConfig("127.0.0.1:0")))
	require.NoError(t, err)
	s.Router().Get("/only", echoPath)
	s.Serve()
	defer func() {
		require.NoError(t, s.Shutdown())
	}()
	url := s.URLs()[0]

	resp, body := get(t, "POST", url+"only")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "Method Not Allowed\n", body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, body = get(t, "GET", url+"missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found\n", body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerAllowOrigin(t *testing.T) {
	cfg := testConfig("127.0.0.1:0")
	cfg.AllowOrigin = "https://example.com"
	s := startServer(t, WithConfig(cfg))
	resp, _ := get(t, "GET", s.URLs()[0])
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	cfg.AllowOrigin = ""
	s = startServer(t, WithConfig(cfg))
	resp, _ = get(t, "GET", s.URLs()[0])
	_, found := resp.Header["Access-Control-Allow-Origin"]
	assert.False(t, found)
}

func TestServerBaseURL(t *testing.T) {
	for _, baseURL := range []string{"assets", "/assets", "/assets/"} {
		cfg := testConfig("127.0.0.1:0")
		cfg.BaseURL = baseURL
		s := startServer(t, WithConfig(cfg))
		assert.Equal(t, "/assets", s.BaseURL(), baseURL)
		url := s.URLs()[0]
		require.True(t, strings.HasSuffix(url, "/assets/"), url)

		resp, body := get(t, "GET", url+"model.glb")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/model.glb", body)

		root := strings.TrimSuffix(url, "assets/")
		resp, _ = get(t, "GET", root+"model.glb")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestServerBaseURLRoot(t *testing.T) {
	for _, baseURL := range []string{"", "/"} {
		cfg := testConfig("127.0.0.1:0")
		cfg.BaseURL = baseURL
		s := startServer(t, WithConfig(cfg))
		assert.Equal(t, "", s.BaseURL(), baseURL)
	}
}

func TestServerWithMiddleware(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	m := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen = append(seen, r.URL.Path)
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
	s := startServer(t, WithConfig(testConfig("127.0.0.1:0")), WithMiddleware(m))
	resp, _ := get(t, "GET", s.URLs()[0]+"a")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	assert.Equal(t, []string{"/a"}, seen)
	mu.Unlock()
}

func TestServerWithTemplate(t *testing.T) {
	s, err := NewServer(context.Background(), WithConfig(testConfig("127.0.0.1:0")), WithTemplate(DefaultTemplateCfg()))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Shutdown())
	}()
	assert.NotNil(t, s.HTMLTemplate())

	_, err = NewServer(context.Background(), WithConfig(testConfig("127.0.0.1:0")), WithTemplate(TemplateConfig{Path: "/does/not/exist.html"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get template")
}

func TestServerUnixSocket(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("no unix sockets")
	}
	path := filepath.Join(t.TempDir(), "corsserve.sock")
	s := startServer(t, WithConfig(testConfig("unix://"+path)))
	assert.Equal(t, []string{"unix://" + path}, s.URLs())

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		},
	}
	resp, err := client.Get("http://unix/socket/path")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "/socket/path", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
