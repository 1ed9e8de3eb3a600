// Package metrics expone métricas Prometheus del registry de objetos por
// tenant, de los pools SQL por tenant y de la capa HTTP.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// Config agrupa dependencias necesarias para exponer /metrics.
type Config struct {
	// Registry donde se registran las métricas. Si es nil se crea uno nuevo.
	Registry *prometheus.Registry
	// RuntimeCollectors agrega los collectors de Go y del proceso.
	RuntimeCollectors bool
}

// Metrics contiene los collectors de la aplicación.
type Metrics struct {
	registry *prometheus.Registry

	scopeOps        *prometheus.CounterVec
	factoryDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec
}

// Register crea y registra las métricas. Devuelve el *Metrics listo para
// usar como MetricsFunc del registry y como middleware HTTP.
func Register(cfg Config) (*Metrics, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		scopeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantscope_operations_total",
			Help: "Operaciones del registry de objetos por tenant, por resultado",
		}, []string{"result"}), // hit|created|failed|removed|absent|unresolved

		factoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantscope_factory_duration_seconds",
			Help:    "Duración de los factories de objetos por tenant",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"result"}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		httpInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método",
		}, []string{"method"}),
	}

	cs := []prometheus.Collector{
		m.scopeOps, m.factoryDuration,
		m.httpRequestsTotal, m.httpRequestDuration, m.httpInflight,
	}
	if cfg.RuntimeCollectors {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler devuelve el handler de /metrics para el registry propio.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry devuelve el registry de Prometheus subyacente.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordScopeOp tiene la firma de tenantscope.MetricsFunc.
func (m *Metrics) RecordScopeOp(_ tenantscope.TenantID, _ tenantscope.ObjectKey, result tenantscope.Result, d time.Duration) {
	if m == nil {
		return
	}
	m.scopeOps.WithLabelValues(string(result)).Inc()
	if result == tenantscope.ResultCreated || result == tenantscope.ResultFailed {
		m.factoryDuration.WithLabelValues(string(result)).Observe(d.Seconds())
	}
}

// WatchRegistry registra el collector de estado del registry y de los pools SQL.
// pools puede ser nil.
func (m *Metrics) WatchRegistry(scopes *tenantscope.Registry, pools PoolStatsFunc) error {
	return registerCollector(m.registry, newScopeCollector(scopes, pools))
}

// Middleware instrumenta requests HTTP (contadores, latencia, inflight). El
// label path es el patrón de ruta de chi cuando existe.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		m.httpInflight.WithLabelValues(method).Inc()
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			m.httpInflight.WithLabelValues(method).Dec()
			pathLabel := routeLabel(r)
			m.httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(ww, r)
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return normalizePath(r.URL.Path)
}

// registerCollector registra el collector en el registry indicado, ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// normalizePath colapsa segmentos dinámicos para acotar la cardinalidad
// cuando el request no matcheó ninguna ruta.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" {
		return "/"
	}

	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	if _, err := strconv.Atoi(seg); err == nil {
		return true
	}
	return false
}
