// Package logger is the logging facade used across henka. Log calls carry a
// context so values injected upstream (run id, command) end up on every
// line.
package logger

import (
	"context"
)

type Logger interface {
	Debug(ctx context.Context, msg string, fields ...KeyValue)
	Info(ctx context.Context, msg string, fields ...KeyValue)
	Warn(ctx context.Context, msg string, fields ...KeyValue)
	Error(ctx context.Context, msg string, fields ...KeyValue)
}

type KeyValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

func KV(k string, v interface{}) KeyValue {
	return KeyValue{
		Key:   k,
		Value: v,
	}
}

// ---

type ctxKey struct{}

// Inject returns a copy of ctx whose log lines will carry fields.
func Inject(ctx context.Context, fields ...KeyValue) context.Context {
	existing, _ := ctx.Value(ctxKey{}).([]KeyValue)
	merged := make([]KeyValue, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// Extract returns the fields injected into ctx.
func Extract(ctx context.Context) []KeyValue {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxKey{}).([]KeyValue)
	return fields
}

// ---

type noop struct{}

// Noop discards everything.
var Noop Logger = noop{}

func (noop) Debug(context.Context, string, ...KeyValue) {}
func (noop) Info(context.Context, string, ...KeyValue)  {}
func (noop) Warn(context.Context, string, ...KeyValue)  {}
func (noop) Error(context.Context, string, ...KeyValue) {}
