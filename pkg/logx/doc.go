// Package logx is a small zerolog-backed structured logger used by components
// that run before (or outside) the slog-based logging service: config loading,
// storage, transport adapters.
//
// The zero Logger value is a safe no-op.
package logx
