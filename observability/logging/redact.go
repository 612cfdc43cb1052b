package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces any field value that is not known to be safe.
const RedactedValue = "[REDACTED]"

// safeKeys is the complete log vocabulary of the daemon: the handler-level
// attributes emitted by Setup plus the keys the engine, RPC server, and main
// attach to records. Anything outside this list is assumed to carry caller
// input (bearer tokens, request payloads) and is masked. Keep sorted.
var safeKeys = []string{
	"addr",
	"env",
	"err",
	"message",
	"method",
	"service",
	"severity",
	"signal",
	"stock",
	"timestamp",
}

// IsAllowlisted reports whether key may be logged verbatim. Lookup ignores
// case and surrounding whitespace.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	i := sort.SearchStrings(safeKeys, normalized)
	return i < len(safeKeys) && safeKeys[i] == normalized
}

// RedactionAllowlist returns a copy of the safe-key vocabulary, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, len(safeKeys))
	copy(keys, safeKeys)
	return keys
}

// MaskValue masks any non-blank value. Blank values pass through so empty
// fields stay visibly empty in the output.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog.Attr whose value is masked unless the key belongs
// to the safe vocabulary. The caller's key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
