package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tenantscope/internal/tenantscope"
)

func TestWithIDAndIDFromContext(t *testing.T) {
	ctx := WithID(context.Background(), " acme ")
	id, ok := IDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tenantscope.TenantID("acme"), id)
}

func TestWithID_EmptyIsIgnored(t *testing.T) {
	ctx := WithID(context.Background(), "  ")
	_, ok := IDFromContext(ctx)
	assert.False(t, ok)
}

func TestContextResolver(t *testing.T) {
	r := ContextResolver()

	id, err := r.ResolveTenant(WithID(context.Background(), "globex"))
	require.NoError(t, err)
	assert.Equal(t, tenantscope.TenantID("globex"), id)

	_, err = r.ResolveTenant(context.Background())
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestStaticResolver(t *testing.T) {
	id, err := StaticResolver("initech").ResolveTenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tenantscope.TenantID("initech"), id)

	_, err = StaticResolver("").ResolveTenant(context.Background())
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestChain(t *testing.T) {
	boom := errors.New("boom")
	failing := tenantscope.ResolverFunc(func(context.Context) (tenantscope.TenantID, error) {
		return "", boom
	})

	tests := []struct {
		name    string
		chain   tenantscope.Resolver
		ctx     context.Context
		want    tenantscope.TenantID
		wantErr error
	}{
		{
			name:  "first resolver wins",
			chain: Chain(StaticResolver("a"), StaticResolver("b")),
			ctx:   context.Background(),
			want:  "a",
		},
		{
			name:  "falls through to context",
			chain: Chain(failing, nil, ContextResolver()),
			ctx:   WithID(context.Background(), "ctx-tenant"),
			want:  "ctx-tenant",
		},
		{
			name:    "last error is reported",
			chain:   Chain(ContextResolver(), failing),
			ctx:     context.Background(),
			wantErr: boom,
		},
		{
			name:    "empty chain",
			chain:   Chain(),
			ctx:     context.Background(),
			wantErr: ErrNoTenant,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.chain.ResolveTenant(tt.ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
