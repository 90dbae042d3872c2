package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key derives the deterministic cache key for a request. The endpoint forms
// the key's scope prefix so a context change can invalidate everything
// cached for that endpoint at once.
//
// The document is whitespace-normalized first so formatting differences in
// otherwise identical queries share an entry.
func Key(endpoint, version, document, variablesJSON, contextJSON string) string {
	h := sha256.New()
	for _, part := range []string{endpoint, version, NormalizeDocument(document), variablesJSON, contextJSON} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return endpoint + "|" + hex.EncodeToString(h.Sum(nil))
}

// NormalizeDocument collapses runs of whitespace to single spaces.
func NormalizeDocument(document string) string {
	return strings.Join(strings.Fields(document), " ")
}

// scopeOf extracts the scope prefix a Key embeds. Keys without a separator
// scope to themselves.
func scopeOf(key string) string {
	if i := strings.Index(key, "|"); i >= 0 {
		return key[:i]
	}
	return key
}
