// Path: internal/logger/attr.go
package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers return the empty Attr for missing values, which slog
// handlers drop, so callers never need a nil check.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component names the part of the program emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Channel names a broker channel.
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

// SubscriberID identifies a subscription.
func SubscriberID(id uint64) slog.Attr {
	return slog.Uint64("subscriber_id", id)
}

// Count creates a generic counter attribute.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Method creates an attribute for HTTP methods.
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// Path creates an attribute for URL paths.
func Path(path string) slog.Attr {
	if path == "" {
		return slog.Attr{}
	}
	return slog.String("path", path)
}

// StatusCode creates an attribute for HTTP status codes.
func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}
