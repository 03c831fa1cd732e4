// Package serve provides the serve command.
package serve

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/corsserve/corsserve/cmd"
	"github.com/corsserve/corsserve/fs"
	"github.com/corsserve/corsserve/fs/config/flags"
	"github.com/corsserve/corsserve/lib/env"
	libhttp "github.com/corsserve/corsserve/lib/http"
	"github.com/corsserve/corsserve/lib/http/serve"
	"github.com/corsserve/corsserve/lib/metrics"
	"github.com/corsserve/corsserve/lib/systemd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Options required for http server
type Options struct {
	HTTP          libhttp.Config
	Template      libhttp.TemplateConfig
	Metrics       metrics.Options
	Root          string   // directory to serve
	MimeTypes     []string // extra ext=type overrides
	DetectContent bool     // sniff the type of files with unknown extensions
	NoListing     bool     // 404 directories without an index
}

// DefaultOpt is the default values used for Options
var DefaultOpt = Options{
	HTTP:     libhttp.DefaultCfg(),
	Template: libhttp.DefaultTemplateCfg(),
	Metrics:  metrics.DefaultOpt(),
	Root:     ".",
}

// Opt is options set by command line flags
var Opt = DefaultOpt

// AddFlags adds the serve flags to flagSet
func AddFlags(flagSet *pflag.FlagSet, opt *Options) {
	opt.HTTP.AddFlagsPrefix(flagSet, "")
	opt.Template.AddFlagsPrefix(flagSet, "")
	opt.Metrics.AddFlags(flagSet)
	flags.StringVarP(flagSet, &opt.Root, "root", "", opt.Root, "Directory to serve, ~ and ${VAR} are expanded")
	flags.StringArrayVarP(flagSet, &opt.MimeTypes, "mime-type", "", opt.MimeTypes, "Set the MIME type of an extension as ext=type, eg .usdz=model/vnd.usdz+zip")
	flags.BoolVarP(flagSet, &opt.DetectContent, "detect-content", "", opt.DetectContent, "Sniff the MIME type of files with unknown extensions")
	flags.BoolVarP(flagSet, &opt.NoListing, "no-listing", "", opt.NoListing, "Don't list directories without an index.html")
}

func init() {
	AddFlags(Command.Flags(), &Opt)
	cmd.Root.AddCommand(Command)
	cmd.DefaultCommand = Command
}

// Command definition for cobra
var Command = &cobra.Command{
	Use:   "serve",
	Short: `Serve a directory over HTTP with CORS enabled.`,
	Long: `corsserve serve serves the files under --root (the current directory
by default) on 0.0.0.0:8000.

Every response carries an Access-Control-Allow-Origin header, "*" unless
--allow-origin says otherwise, so pages on other origins can load the
files.  This is the default command so running "corsserve" on its own
does the same.

Files ending in .glb are served as model/gltf-binary.  Other
extensions are looked up in the platform MIME table and anything
unknown is served as application/octet-stream.  Use --mime-type to add
or change an extension and --detect-content to sniff the content of
files the table doesn't know.

A directory is served by its index.html or index.htm if it has one,
otherwise by a listing of its contents.  The listing may be sorted with
?sort=name|namedirfirst|size|time and ?order=asc|desc.  Use --no-listing
to return 404 instead.

Use -v to see the access log.

Use --metrics-addr to serve prometheus metrics about the requests on a
separate address.

` + libhttp.Help + libhttp.TemplateHelp,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func() error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, Opt)
		})
	},
}

// newFs returns a read only filesystem rooted at root
func newFs(root string) (afero.Fs, error) {
	abs, err := filepath.Abs(env.ShellExpand(root))
	if err != nil {
		return nil, errors.Wrapf(err, "bad root %q", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(err, "can't serve root")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("can't serve root %q: not a directory", abs)
	}
	return afero.NewBasePathFs(afero.NewReadOnlyFs(afero.NewOsFs()), abs), nil
}

// server contains everything to run the server
type server struct {
	server    *libhttp.Server
	f         afero.Fs
	mimeTypes *fs.MimeTable
	opt       Options
}

func newServer(ctx context.Context, f afero.Fs, opt *Options, options ...libhttp.Option) (*server, error) {
	mimeTypes, err := fs.NewMimeTable(opt.MimeTypes...)
	if err != nil {
		return nil, err
	}
	mimeTypes.SetDetect(opt.DetectContent)
	s := &server{
		f:         f,
		mimeTypes: mimeTypes,
		opt:       *opt,
	}
	options = append([]libhttp.Option{
		libhttp.WithConfig(opt.HTTP),
		libhttp.WithTemplate(opt.Template),
	}, options...)
	s.server, err = libhttp.NewServer(ctx, options...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init server")
	}

	router := s.server.Router()
	router.Get("/*", s.handler)
	router.Head("/*", s.handler)

	return s, nil
}

// handler reads incoming requests and dispatches them
func (s *server) handler(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	isDir := strings.HasSuffix(urlPath, "/")
	remote := path.Clean("/" + urlPath)

	info, err := s.f.Stat(remote)
	if os.IsNotExist(err) {
		fs.Infof(remote, "%s: File not found", r.RemoteAddr)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	} else if os.IsPermission(err) {
		fs.Infof(remote, "%s: Permission denied", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	} else if err != nil {
		serve.Error(remote, w, "Failed to find file", err)
		return
	}

	if info.IsDir() {
		if !isDir {
			s.redirectToDir(w, r, remote)
			return
		}
		s.serveDir(w, r, remote)
		return
	}
	if isDir {
		fs.Infof(remote, "%s: Not a directory", r.RemoteAddr)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	serve.File(w, r, s.f, remote, s.mimeTypes)
}

// redirectToDir sends the client to the directory at remote with a
// "/" appended, keeping the query and any base URL
func (s *server) redirectToDir(w http.ResponseWriter, r *http.Request, remote string) {
	if remote != "/" {
		remote += "/"
	}
	location := (&url.URL{Path: s.server.BaseURL() + remote, RawQuery: r.URL.RawQuery}).String()
	http.Redirect(w, r, location, http.StatusMovedPermanently)
}

// indexFiles are served in place of a listing
var indexFiles = []string{"index.html", "index.htm"}

// serveDir serves a directory index at remote
func (s *server) serveDir(w http.ResponseWriter, r *http.Request, remote string) {
	for _, index := range indexFiles {
		indexRemote := path.Join(remote, index)
		if info, err := s.f.Stat(indexRemote); err == nil && !info.IsDir() {
			serve.File(w, r, s.f, indexRemote, s.mimeTypes)
			return
		}
	}
	if s.opt.NoListing {
		fs.Infof(remote, "%s: Directory listing disabled", r.RemoteAddr)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	// List the directory
	entries, err := afero.ReadDir(s.f, remote)
	if os.IsPermission(err) {
		fs.Infof(remote, "%s: Permission denied", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	} else if err != nil {
		serve.Error(remote, w, "Failed to list directory", err)
		return
	}

	query := r.URL.Query()
	dirRemote := strings.Trim(remote, "/")
	directory := serve.NewDirectory(dirRemote, s.server.HTMLTemplate())
	directory.SetQuery(listingQuery(query))
	for _, info := range entries {
		if info.Mode()&os.ModeSymlink != 0 {
			// follow links so linked directories list as directories
			if target, err := s.f.Stat(path.Join(remote, info.Name())); err == nil {
				info = target
			}
		}
		directory.AddHTMLEntry(path.Join(dirRemote, info.Name()), info.IsDir(), info.Size(), info.ModTime())
	}

	directory.ProcessQueryParams(query.Get("sort"), query.Get("order"))
	directory.Serve(w, r)
}

// listingQuery returns the listing parameters of query so links to
// subdirectories keep the chosen order
func listingQuery(query url.Values) url.Values {
	out := url.Values{}
	for _, key := range []string{"sort", "order"} {
		if value := query.Get(key); value != "" {
			out.Set(key, value)
		}
	}
	return out
}

// Serve serves opt.Root until ctx is cancelled
func Serve(ctx context.Context, opt Options) error {
	f, err := newFs(opt.Root)
	if err != nil {
		return err
	}

	var (
		m       *metrics.Metrics
		options []libhttp.Option
	)
	if opt.Metrics.Enabled() {
		m = metrics.NewMetrics()
		options = append(options, libhttp.WithMiddleware(m.Middleware()))
	}

	s, err := newServer(ctx, f, &opt, options...)
	if err != nil {
		return err
	}
	servers := []*libhttp.Server{s.server}

	if m != nil {
		metricsServer, err := metrics.NewServer(ctx, opt.Metrics, m)
		if err != nil {
			_ = s.server.Shutdown()
			return errors.Wrap(err, "failed to start metrics server")
		}
		servers = append(servers, metricsServer)
		for _, u := range metricsServer.URLs() {
			fs.Logf(nil, "Serving metrics on %smetrics%v", u, fs.LogValueHide("url", u+"metrics"))
		}
	}

	for _, u := range s.server.URLs() {
		fs.Logf(nil, "Serving on %s%v", u, fs.LogValueHide("url", u))
	}
	return run(ctx, servers...)
}

// run serves until ctx is cancelled or one of the servers stops on
// its own, then shuts them all down
func run(ctx context.Context, servers ...*libhttp.Server) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv.Serve()
	}
	stopping := systemd.Notify()
	defer stopping()
	var urls []string
	for _, srv := range servers {
		urls = append(urls, srv.URLs()...)
	}
	if err := systemd.UpdateStatus("Serving on " + strings.Join(urls, ", ")); err != nil {
		fs.Errorf(nil, "failed to update systemd status: %v", err)
	}

	g.Go(func() error {
		<-gCtx.Done()
		stopping()
		fs.Infof(nil, "Shutting down")
		var firstErr error
		for _, srv := range servers {
			if err := srv.Shutdown(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			srv.Wait()
			if gCtx.Err() != nil {
				return nil
			}
			return errors.Errorf("server on %s stopped unexpectedly", strings.Join(srv.URLs(), ", "))
		})
	}
	return g.Wait()
}
