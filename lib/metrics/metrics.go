// Package metrics exports prometheus metrics about the requests served
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/corsserve/corsserve/fs/config/flags"
	libhttp "github.com/corsserve/corsserve/lib/http"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

// Namespace prefixes every metric name
const Namespace = "corsserve"

// Options holds the configuration for the metrics server
type Options struct {
	HTTP libhttp.Config
}

// DefaultOpt returns Options with the metrics server disabled
func DefaultOpt() Options {
	cfg := libhttp.DefaultCfg()
	cfg.ListenAddr = nil
	cfg.AllowOrigin = ""
	return Options{HTTP: cfg}
}

// AddFlags adds the metrics flags to flagSet
func (opt *Options) AddFlags(flagSet *pflag.FlagSet) {
	flags.StringArrayVarP(flagSet, &opt.HTTP.ListenAddr, "metrics-addr", "", opt.HTTP.ListenAddr, "IPaddress:Port or :Port to bind metrics server to")
}

// Enabled returns whether the metrics server is enabled
func (opt *Options) Enabled() bool {
	return len(opt.HTTP.ListenAddr) > 0
}

// Metrics holds the request metrics and the registry they live in
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

// NewMetrics creates the metrics in a registry of their own along
// with the go runtime and process collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests answered, by method and status code.",
		}, []string{"method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time taken to answer HTTP requests, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.Collectors()...)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Collectors returns the request metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Requests,
		m.Duration,
	}
}

// Middleware records every request passing through it
func (m *Metrics) Middleware() libhttp.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			code := strconv.Itoa(libhttp.ResponseStatus(ww))
			m.Requests.WithLabelValues(r.Method, code).Inc()
			m.Duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer binds the metrics server which serves /metrics
func NewServer(ctx context.Context, opt Options, m *Metrics) (*libhttp.Server, error) {
	s, err := libhttp.NewServer(ctx, libhttp.WithConfig(opt.HTTP))
	if err != nil {
		return nil, err
	}
	s.Router().Get("/metrics", m.Handler().ServeHTTP)
	return s, nil
}
