package validation

import "regexp"

// Tenant slug rules (aplica a lo que llega por header, query, subdominio o claim):
//   - Start and end with [A-Za-z0-9].
//   - Middle chars may include [A-Za-z0-9_.-].
//   - Length 1..64.
//   - Excludes whitespace, '/', ':' and control chars, así el slug es seguro en
//     logs, labels de métricas y prefijos de cache.
//
// Examples valid: acme, Acme-1, tenant_a.eu
// Examples invalid: "", -acme, acme., "bad space", a/b, acme:1, 65+ chars.
var tenantSlugRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9_\.-]{0,62}[A-Za-z0-9])?$`)

// ValidTenantSlug returns true if the provided tenant slug matches the allowed pattern.
func ValidTenantSlug(slug string) bool {
	return tenantSlugRe.MatchString(slug)
}
