// Package http provides the listener and router lifecycle for the
// corsserve http servers
package http

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/corsserve/corsserve/fs"
	"github.com/corsserve/corsserve/fs/config/flags"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Help describes the server flags for the command help
var Help = `### Server options

Use ` + "`--addr`" + ` to specify which IP address and port the server should
listen on, eg ` + "`--addr 1.2.3.4:8000` or `--addr :8080`" + ` to listen to all
IPs.  By default it listens on 0.0.0.0:8000.  You can use port :0 to
let the OS choose an available port.

You can use a unix socket by setting the url to ` + "`unix:///path/to/socket`" + `
or just by using an absolute path name.

` + "`--addr`" + ` may be repeated to listen on multiple IPs/ports/sockets.

` + "`--server-read-timeout` and `--server-write-timeout`" + ` can be used to
control the timeouts on the server.  Note that this is the total time
for a transfer.

` + "`--max-header-bytes`" + ` controls the maximum number of bytes the server will
accept in the HTTP header.

` + "`--baseurl`" + ` controls the URL prefix that corsserve serves from.  By default
corsserve will serve from the root.  If you used ` + "`--baseurl \"/assets\"`" + ` then
corsserve would serve from a URL starting with "/assets/".  Leading and
trailing "/" on ` + "`--baseurl`" + ` are optional.

` + "`--allow-origin`" + ` sets the Access-Control-Allow-Origin header sent with
every response.  It defaults to "*" so any web page may fetch the files.
Set it to "" to send no CORS header at all.

### Socket activation

Instead of the listening addresses specified above, corsserve will listen
to all FDs passed by the service manager, if any (and ignore ` + "`--addr`" + `).

Socket activation can be tested ad-hoc with

    systemd-socket-activate -l 8000 -- corsserve
`

// Middleware function signature required by chi.Router.Use()
type Middleware func(http.Handler) http.Handler

// Config contains options for the http Server
type Config struct {
	ListenAddr         []string      // Port to listen on
	BaseURL            string        // prefix to strip from URLs
	ServerReadTimeout  time.Duration // Timeout for server reading data
	ServerWriteTimeout time.Duration // Timeout for server writing data
	MaxHeaderBytes     int           // Maximum size of request header
	AllowOrigin        string        // AllowOrigin sets the Access-Control-Allow-Origin header
}

// AddFlagsPrefix adds flags for the http server
func (cfg *Config) AddFlagsPrefix(flagSet *pflag.FlagSet, prefix string) {
	flags.StringArrayVarP(flagSet, &cfg.ListenAddr, prefix+"addr", "", cfg.ListenAddr, "IPaddress:Port, :Port or [unix://]/path/to/socket to bind server to")
	flags.DurationVarP(flagSet, &cfg.ServerReadTimeout, prefix+"server-read-timeout", "", cfg.ServerReadTimeout, "Timeout for server reading data")
	flags.DurationVarP(flagSet, &cfg.ServerWriteTimeout, prefix+"server-write-timeout", "", cfg.ServerWriteTimeout, "Timeout for server writing data")
	flags.IntVarP(flagSet, &cfg.MaxHeaderBytes, prefix+"max-header-bytes", "", cfg.MaxHeaderBytes, "Maximum size of request header")
	flags.StringVarP(flagSet, &cfg.BaseURL, prefix+"baseurl", "", cfg.BaseURL, "Prefix for URLs - leave blank for root")
	flags.StringVarP(flagSet, &cfg.AllowOrigin, prefix+"allow-origin", "", cfg.AllowOrigin, "Origin which cross-domain request (CORS) can be executed from")
}

// DefaultCfg is the default values used for Config
func DefaultCfg() Config {
	return Config{
		ListenAddr:         []string{"0.0.0.0:8000"},
		ServerReadTimeout:  1 * time.Hour,
		ServerWriteTimeout: 1 * time.Hour,
		MaxHeaderBytes:     4096,
		AllowOrigin:        "*",
	}
}

// ErrNoListeners is returned if there is nothing to listen on
var ErrNoListeners = errors.New("no addresses to listen on")

type instance struct {
	url        string
	listener   net.Listener
	httpServer *http.Server
}

func (s instance) serve(wg *sync.WaitGroup) {
	defer wg.Done()
	err := s.httpServer.Serve(s.listener)
	if err != http.ErrServerClosed && err != nil {
		fs.Errorf(nil, "%s: unexpected error: %s", s.listener.Addr(), err.Error())
	}
}

// Server contains info about the running http server
type Server struct {
	wg           sync.WaitGroup
	mux          chi.Router
	instances    []instance
	cfg          Config
	template     *TemplateConfig
	htmlTemplate *template.Template
	middleware   []Middleware
}

// Option allows customizing the server
type Option func(*Server)

// WithConfig option applies the Config to the server, overriding defaults
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithTemplate option allows the parsing of a template
func WithTemplate(cfg TemplateConfig) Option {
	return func(s *Server) {
		s.template = &cfg
	}
}

// WithMiddleware adds middleware which runs after the built in
// middleware and before the routes
func WithMiddleware(middleware ...Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, middleware...)
	}
}

func newInstance(s *Server, listener net.Listener, url string) instance {
	return instance{
		url:      url,
		listener: listener,
		httpServer: &http.Server{
			Handler:           s.mux,
			ReadTimeout:       s.cfg.ServerReadTimeout,
			WriteTimeout:      s.cfg.ServerWriteTimeout,
			MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
			ReadHeaderTimeout: 10 * time.Second, // time to send the headers
			IdleTimeout:       60 * time.Second, // time to keep idle connections open
		},
	}
}

// NewServer builds the router and binds every listener.
//
// Listeners are bound here rather than in Serve so an address already
// in use is reported to the caller straight away.
func NewServer(ctx context.Context, options ...Option) (*Server, error) {
	s := &Server{
		mux: chi.NewRouter(),
		cfg: DefaultCfg(),
	}
	for _, opt := range options {
		opt(s)
	}

	// Build base router
	s.mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	s.mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	// CORS goes first so the header is on the 404 from a bad prefix too
	s.mux.Use(MiddlewareCORS(s.cfg.AllowOrigin))
	s.mux.Use(MiddlewareAccessLog())
	for _, m := range s.middleware {
		s.mux.Use(m)
	}

	// Ignore passing "/" for BaseURL
	s.cfg.BaseURL = strings.Trim(s.cfg.BaseURL, "/")
	if s.cfg.BaseURL != "" {
		s.cfg.BaseURL = "/" + s.cfg.BaseURL
		s.mux.Use(MiddlewareStripPrefix(s.cfg.BaseURL))
	}

	if err := s.initTemplate(); err != nil {
		return nil, err
	}

	// (Only) listen on FDs provided by the service manager, if any.
	sdListeners := getInheritedListeners()
	if len(sdListeners) != 0 {
		for _, listener := range sdListeners {
			url := fmt.Sprintf("http://%s%s/", listener.Addr().String(), s.cfg.BaseURL)
			s.instances = append(s.instances, newInstance(s, listener, url))
		}
		return s, nil
	}

	if len(s.cfg.ListenAddr) == 0 {
		return nil, ErrNoListeners
	}
	for _, addr := range s.cfg.ListenAddr {
		if err := ctx.Err(); err != nil {
			s.closeListeners()
			return nil, err
		}
		var (
			listener net.Listener
			url      string
			err      error
		)
		if strings.HasPrefix(addr, "unix://") || filepath.IsAbs(addr) {
			addr = strings.TrimPrefix(addr, "unix://")
			listener, err = net.Listen("unix", addr)
			url = "unix://" + addr
		} else {
			addr = strings.TrimPrefix(addr, "http://")
			listener, err = net.Listen("tcp", addr)
			if err == nil {
				url = fmt.Sprintf("http://%s%s/", listener.Addr().String(), s.cfg.BaseURL)
			}
		}
		if err != nil {
			s.closeListeners()
			return nil, errors.Wrapf(err, "failed to listen on %q", addr)
		}
		s.instances = append(s.instances, newInstance(s, listener, url))
	}

	return s, nil
}

// closeListeners closes listeners bound by a NewServer which failed
func (s *Server) closeListeners() {
	for _, ii := range s.instances {
		_ = ii.listener.Close()
	}
	s.instances = nil
}

func (s *Server) initTemplate() error {
	if s.template == nil {
		return nil
	}

	var err error
	s.htmlTemplate, err = GetTemplate(s.template.Path)
	if err != nil {
		err = errors.Wrap(err, "failed to get template")
	}

	return err
}

// Serve starts the HTTP server on each listener
func (s *Server) Serve() {
	s.wg.Add(len(s.instances))
	for _, ii := range s.instances {
		fs.Debugf(nil, "Starting listener on %s", ii.url)
		go ii.serve(&s.wg)
	}
}

// Wait blocks while the server is serving requests
func (s *Server) Wait() {
	s.wg.Wait()
}

// Router returns the server base router
func (s *Server) Router() chi.Router {
	return s.mux
}

// Time to wait to Shutdown an HTTP server
const gracefulShutdownTime = 10 * time.Second

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	var firstErr error
	for _, ii := range s.instances {
		expiry := time.Now().Add(gracefulShutdownTime)
		ctx, cancel := context.WithDeadline(context.Background(), expiry)
		if err := ii.httpServer.Shutdown(ctx); err != nil {
			fs.Errorf(nil, "error shutting down server: %s", err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "shutdown %s", ii.url)
			}
		}
		cancel()
		// in case Serve was never called
		_ = ii.listener.Close()
	}
	s.wg.Wait()
	return firstErr
}

// HTMLTemplate returns the parsed template, if WithTemplate option was passed.
func (s *Server) HTMLTemplate() *template.Template {
	return s.htmlTemplate
}

// BaseURL returns the prefix stripped from request paths, either ""
// or starting with "/" and without a trailing "/"
func (s *Server) BaseURL() string {
	return s.cfg.BaseURL
}

// URLs returns the URL of every listener
func (s *Server) URLs() []string {
	out := make([]string, 0, len(s.instances))
	for _, ii := range s.instances {
		out = append(out, ii.url)
	}
	return out
}
