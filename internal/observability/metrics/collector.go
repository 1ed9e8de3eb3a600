package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/tenantscope/internal/infra/tenantsql"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

// PoolStatsFunc devuelve los stats de los pools SQL por tenant (tenantsql.Manager.Stats).
type PoolStatsFunc func() map[string]tenantsql.PoolStat

// scopeCollector expone gauges del registry y de los pools por tenant.
type scopeCollector struct {
	scopes *tenantscope.Registry
	pools  PoolStatsFunc

	tenantsDesc *prometheus.Desc
	objectsDesc *prometheus.Desc

	poolCountDesc      *prometheus.Desc
	tenantAcquiredDesc *prometheus.Desc
	tenantIdleDesc     *prometheus.Desc
	tenantTotalDesc    *prometheus.Desc
}

func newScopeCollector(scopes *tenantscope.Registry, pools PoolStatsFunc) *scopeCollector {
	return &scopeCollector{
		scopes:             scopes,
		pools:              pools,
		tenantsDesc:        prometheus.NewDesc("tenantscope_tenants", "Tenants con scope activo", nil, nil),
		objectsDesc:        prometheus.NewDesc("tenantscope_objects", "Objetos guardados por tenant", []string{"tenant"}, nil),
		poolCountDesc:      prometheus.NewDesc("tenant_pool_count", "Cantidad de pools de tenants activos", nil, nil),
		tenantAcquiredDesc: prometheus.NewDesc("tenant_pgxpool_acquired", "Conexiones adquiridas por tenant", []string{"tenant"}, nil),
		tenantIdleDesc:     prometheus.NewDesc("tenant_pgxpool_idle", "Conexiones inactivas por tenant", []string{"tenant"}, nil),
		tenantTotalDesc:    prometheus.NewDesc("tenant_pgxpool_total", "Conexiones totales por tenant", []string{"tenant"}, nil),
	}
}

func (c *scopeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tenantsDesc
	ch <- c.objectsDesc
	ch <- c.poolCountDesc
	ch <- c.tenantAcquiredDesc
	ch <- c.tenantIdleDesc
	ch <- c.tenantTotalDesc
}

func (c *scopeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.scopes != nil {
		st := c.scopes.Stats()
		ch <- prometheus.MustNewConstMetric(c.tenantsDesc, prometheus.GaugeValue, float64(st.Tenants))
		for tenant, n := range st.PerTenant {
			ch <- prometheus.MustNewConstMetric(c.objectsDesc, prometheus.GaugeValue, float64(n), tenant.String())
		}
	}

	if c.pools == nil {
		return
	}
	stats := c.pools()
	ch <- prometheus.MustNewConstMetric(c.poolCountDesc, prometheus.GaugeValue, float64(len(stats)))
	for slug, s := range stats {
		ch <- prometheus.MustNewConstMetric(c.tenantAcquiredDesc, prometheus.GaugeValue, float64(s.Acquired), slug)
		ch <- prometheus.MustNewConstMetric(c.tenantIdleDesc, prometheus.GaugeValue, float64(s.Idle), slug)
		ch <- prometheus.MustNewConstMetric(c.tenantTotalDesc, prometheus.GaugeValue, float64(s.Total), slug)
	}
}
