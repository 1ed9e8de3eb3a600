package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Route(v string) zap.Field     { return zap.String("route", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - TENANT SCOPE
// =================================================================================

// TenantID crea un campo para el ID del tenant.
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// ObjectKey crea un campo para la key de un objeto del registry.
func ObjectKey(v string) zap.Field { return zap.String("object_key", v) }

// Result crea un campo para el resultado de una operación del registry (hit, created...).
func Result(v string) zap.Field { return zap.String("result", v) }

// Driver crea un campo para el driver de un recurso (memory, redis, pg).
func Driver(v string) zap.Field { return zap.String("driver", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field       { return zap.String("component", v) }
func Op(v string) zap.Field              { return zap.String("op", v) }
func Layer(v string) zap.Field           { return zap.String("layer", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func Err(err error) zap.Field            { return zap.Error(err) }
func Count(v int) zap.Field              { return zap.Int("count", v) }
func Key(v string) zap.Field             { return zap.String("key", v) }
func Any(key string, v any) zap.Field    { return zap.Any(key, v) }
func String(key, v string) zap.Field     { return zap.String(key, v) }
func Int(key string, v int) zap.Field    { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field  { return zap.Bool(key, v) }
