package tenantscope

import "errors"

var (
	// ErrTenantUnresolved indica que el Resolver no pudo determinar el tenant.
	ErrTenantUnresolved = errors.New("tenantscope: unable to resolve tenant for tenant-scoped object")
	// ErrResolverNotConfigured se devuelve en New si falta el Resolver.
	ErrResolverNotConfigured = errors.New("tenantscope: tenant resolver not configured")
	ErrInvalidKey            = errors.New("tenantscope: invalid object key")
	ErrNilFactory            = errors.New("tenantscope: nil factory")
	// ErrNilObject indica que el factory devolvió nil sin error. Nunca se guarda.
	ErrNilObject = errors.New("tenantscope: factory returned a nil object")
	// ErrTypeMismatch lo devuelven GetAs/RemoveAs cuando la instancia guardada es de otro tipo.
	ErrTypeMismatch = errors.New("tenantscope: stored object has unexpected type")
	ErrClosed       = errors.New("tenantscope: registry closed")
)

// IsTenantUnresolved indica si el error se debe a un tenant no resuelto.
func IsTenantUnresolved(err error) bool { return errors.Is(err, ErrTenantUnresolved) }
