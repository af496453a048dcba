// Package logx provides the structured logging facade used across todobot.
//
// It wraps zerolog behind a small Logger value type so call sites stay stable
// while sinks (console, JSON file) can be swapped at runtime via the Service.
package logx
