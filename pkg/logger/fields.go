package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field is one structured key/value. value is what the anomaly collector
// records for it.
type Field struct {
	key   string
	value interface{}
	add   func(e *zerolog.Event)
}

func (f Field) apply(e *zerolog.Event) {
	if f.add != nil {
		f.add(e)
	}
}

func fieldMap(fields []Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.key] = f.value
	}
	return m
}

func String(key, value string) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return Field{key, strings.Join(value, ", "), func(e *zerolog.Event) { e.Strs(key, value) }}
}

func Int(key string, value int) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int32(key string, value int32) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int32(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Uint(key string, value uint) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Uint(key, value) }}
}

func Uint64(key string, value uint64) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Uint64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Bool(key, value) }}
}

// Duration is written in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{key, value.String(), func(e *zerolog.Event) { e.Dur(key, value) }}
}

// Error logs err under "error". A nil error logs nothing.
func Error(err error) Field {
	if err == nil {
		return Field{key: "error"}
	}
	return Field{"error", err.Error(), func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{key, value, func(e *zerolog.Event) { e.Interface(key, value) }}
}
