package tenantscope

import (
	"context"
	"fmt"
)

// GetAs es la versión tipada de Registry.Get.
func GetAs[T any](ctx context.Context, r *Registry, key ObjectKey, factory func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if factory == nil {
		return zero, ErrNilFactory
	}
	v, err := r.Get(ctx, key, func(ctx context.Context) (any, error) {
		obj, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return obj, nil
	})
	if err != nil {
		return zero, err
	}
	obj, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %s holds %T", ErrTypeMismatch, key, v)
	}
	return obj, nil
}

// RemoveAs es la versión tipada de Registry.Remove. Si la instancia removida
// no es T igual queda fuera del registry y se informa ErrTypeMismatch.
func RemoveAs[T any](ctx context.Context, r *Registry, key ObjectKey) (T, bool, error) {
	var zero T
	v, ok, err := r.Remove(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	obj, isT := v.(T)
	if !isT {
		return zero, true, fmt.Errorf("%w: key %s held %T", ErrTypeMismatch, key, v)
	}
	return obj, true, nil
}
