package tenantscope

import (
	"io"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// scope guarda las instancias de un tenant.
type scope struct {
	tenant TenantID

	mu      sync.RWMutex
	objects map[ObjectKey]any
	drained bool         // true después de drain; no se aceptan más instancias
	closed  *atomic.Bool // flag del registry dueño

	// sf evita invocar el factory en paralelo para la misma key
	sf singleflight.Group
}

func newScope(tenant TenantID, closed *atomic.Bool) *scope {
	return &scope{
		tenant:  tenant,
		objects: make(map[ObjectKey]any),
		closed:  closed,
	}
}

func (s *scope) lookup(key ObjectKey) (any, bool) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	return obj, ok
}

// store guarda obj salvo que el registry esté cerrado (ok=false). Si otra
// instancia ya ocupa la key se conserva esa y inserted=false.
func (s *scope) store(key ObjectKey, obj any) (canonical any, inserted, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained || s.closed.Load() {
		return nil, false, false
	}
	if cur, exists := s.objects[key]; exists {
		return cur, false, true
	}
	s.objects[key] = obj
	return obj, true, true
}

// delete quita la instancia y olvida el flight de la key, que puede seguir
// registrado si el store ya ocurrió pero el flight no terminó. Un Get posterior
// arranca un flight nuevo en vez de unirse al que devolvería la instancia quitada.
func (s *scope) delete(key ObjectKey) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if ok {
		delete(s.objects, key)
		s.sf.Forget(string(key))
	}
	return obj, ok
}

func (s *scope) keys() []ObjectKey {
	s.mu.RLock()
	out := make([]ObjectKey, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *scope) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// drain vacía el scope y lo marca como cerrado. Devuelve las instancias que tenía.
func (s *scope) drain() map[ObjectKey]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.objects
	s.objects = make(map[ObjectKey]any)
	s.drained = true
	return out
}

// isNil detecta nil y punteros/mapas/etc nil envueltos en una interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func closeObject(obj any) error {
	if c, ok := obj.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
