package log

import "time"

// Logger provides structured logging capabilities.
// Implementations can wrap zerolog, zap, logrus, or any other logging library.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// With returns a Logger that adds fields to every message.
func With(logger Logger, fields ...Field) Logger {
	if logger == nil {
		return NewNoopLogger()
	}
	if len(fields) == 0 {
		return logger
	}
	return &contextLogger{next: logger, fields: fields}
}

type contextLogger struct {
	next   Logger
	fields []Field
}

func (c *contextLogger) merge(fields []Field) []Field {
	out := make([]Field, 0, len(c.fields)+len(fields))
	out = append(out, c.fields...)
	return append(out, fields...)
}

func (c *contextLogger) Debug(msg string, fields ...Field) { c.next.Debug(msg, c.merge(fields)...) }
func (c *contextLogger) Info(msg string, fields ...Field)  { c.next.Info(msg, c.merge(fields)...) }
func (c *contextLogger) Warn(msg string, fields ...Field)  { c.next.Warn(msg, c.merge(fields)...) }
func (c *contextLogger) Error(msg string, fields ...Field) { c.next.Error(msg, c.merge(fields)...) }
