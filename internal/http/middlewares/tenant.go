package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/tenantscope/internal/http/errors"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/tenant"
	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
	"github.com/dropDatabas3/tenantscope/internal/validation"
)

// =================================================================================
// TENANT RESOLVER
// =================================================================================

// TenantResolver define cómo obtener el tenant slug de un request.
type TenantResolver func(r *http.Request) string

// HeaderTenantResolver resuelve usando un header específico.
func HeaderTenantResolver(headerName string) TenantResolver {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(headerName))
	}
}

// QueryTenantResolver resuelve usando un query parameter.
func QueryTenantResolver(paramName string) TenantResolver {
	if paramName == "" {
		paramName = "tenant"
	}
	return func(r *http.Request) string {
		return strings.TrimSpace(r.URL.Query().Get(paramName))
	}
}

// SubdomainTenantResolver resuelve desde el subdominio.
// Ej: acme.tenantscope.io -> "acme". IPs y "www" no cuentan.
func SubdomainTenantResolver() TenantResolver {
	return func(r *http.Request) string {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if net.ParseIP(host) != nil {
			return ""
		}
		// Si hay más de un punto, el primer segmento es el subdominio
		if strings.Count(host, ".") > 1 {
			sub := strings.Split(host, ".")[0]
			if strings.EqualFold(sub, "www") {
				return ""
			}
			return sub
		}
		return ""
	}
}

// BearerClaimResolver toma el tenant de un claim del JWT (HS256) del header
// Authorization. Un token ausente o inválido no resuelve.
func BearerClaimResolver(secret []byte, claim string) TenantResolver {
	if claim == "" {
		claim = "tid"
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(r *http.Request) string {
		if len(secret) == 0 {
			return ""
		}
		h := r.Header.Get("Authorization")
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		claims := jwt.MapClaims{}
		tok, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), claims, keyFunc)
		if err != nil || !tok.Valid {
			logger.From(r.Context()).Debug("bearer tenant claim rejected", logger.Err(err))
			return ""
		}
		switch v := claims[claim].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
		return ""
	}
}

// ChainResolvers combina múltiples resolvers, retornando el primer resultado no vacío.
func ChainResolvers(resolvers ...TenantResolver) TenantResolver {
	return func(r *http.Request) string {
		for _, resolver := range resolvers {
			if resolver == nil {
				continue
			}
			if slug := resolver(r); slug != "" {
				return slug
			}
		}
		return ""
	}
}

// =================================================================================
// TENANT MIDDLEWARE
// =================================================================================

// TenantMiddlewareConfig configura el middleware de tenant.
type TenantMiddlewareConfig struct {
	Resolver TenantResolver
	Optional bool // Si es true, no falla si no hay tenant

	// Known, si no es nil, decide si el slug es un tenant declarado. Los que no
	// lo son se rechazan antes de llegar al registry (404 TENANT_NOT_CONFIGURED).
	Known func(slug string) bool
}

// TenantMiddleware resuelve el tenant del request y lo deja en el contexto
// (tenant.WithID) para que el registry lo encuentre.
type TenantMiddleware struct {
	resolver TenantResolver
	optional bool
	known    func(slug string) bool
}

// NewTenantMiddleware crea un nuevo middleware de tenant.
// Si resolver es nil, usa la cadena: Header -> Query -> Subdomain
func NewTenantMiddleware(cfg TenantMiddlewareConfig) *TenantMiddleware {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = ChainResolvers(
			HeaderTenantResolver("X-Tenant-ID"),
			HeaderTenantResolver("X-Tenant-Slug"),
			QueryTenantResolver("tenant"),
			SubdomainTenantResolver(),
		)
	}
	return &TenantMiddleware{resolver: resolver, optional: cfg.Optional, known: cfg.Known}
}

// Handle intercepta el request y resuelve el tenant.
func (m *TenantMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := m.resolver(r)
		if slug == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			errors.WriteError(w, errors.ErrTenantUnresolved.WithDetail("missing tenant identifier"))
			return
		}
		if !validation.ValidTenantSlug(slug) {
			errors.WriteError(w, errors.ErrTenantUnresolved.WithDetail("invalid tenant identifier"))
			return
		}
		if m.known != nil && !m.known(slug) {
			errors.WriteError(w, errors.ErrTenantNotConfigured.WithDetail("unknown tenant"))
			return
		}

		ctx := tenant.WithID(r.Context(), tenantscope.TenantID(slug))
		ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.TenantID(slug)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
