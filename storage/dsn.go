package storage

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// filePragmas are the connection options every ngndexd database opens with.
// WAL journaling keeps JSON-RPC reads from stalling behind swap write-through,
// and the busy timeout absorbs checkpoint pauses instead of surfacing
// SQLITE_BUSY to the engine's persist hooks.
func filePragmas() url.Values {
	return url.Values{
		"mode":          {"rwc"},
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
		"_foreign_keys": {"on"},
	}
}

// FileDSN resolves path to an absolute location and renders the DSN used to
// open the on-disk pair state database.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve database path %q: %w", trimmed, err)
	}
	return "file:" + abs + "?" + filePragmas().Encode(), nil
}
