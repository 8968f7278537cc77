package fingerprint

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// volatileHeaders are excluded from the normalized request because their
// values change between otherwise identical requests.
var volatileHeaders = map[string]bool{
	"x-stainless-retry-count": true,
}

// Computer derives cache record paths from inbound requests.
// It is a pure value type; computing a path performs no I/O.
type Computer struct {
	// Root directory for cache records.
	CacheDir string
}

func NewComputer(cacheDir string) Computer {
	return Computer{CacheDir: cacheDir}
}

// CachePath returns the record path for the given request, sharded by the
// first two characters of the fingerprint to avoid one oversized directory.
func (c Computer) CachePath(method, url string, headers http.Header, body []byte) string {
	key := Sum(method, url, headers, body)
	return filepath.Join(c.CacheDir, key[:2], key+".json")
}

// Sum computes the fingerprint of a request: a fixed-width hex digest over a
// canonical sorted-key serialization of the normalized request. Requests that
// differ only in header ordering, header name case, surrounding whitespace in
// header values, or a volatile header's value hash identically.
func Sum(method, url string, headers http.Header, body []byte) string {
	normalized := map[string]any{
		"method":  method,
		"url":     url,
		"headers": normalizeHeaders(headers),
		"body":    toText(body),
	}
	// json.Marshal sorts map keys at every level
	b, err := json.Marshal(normalized)
	if err != nil {
		// only reachable with non-marshalable values, which the map above
		// cannot contain
		panic(err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

func normalizeHeaders(headers http.Header) map[string]string {
	normalized := make(map[string]string, len(headers))
	for name, values := range headers {
		name = strings.ToLower(name)
		if volatileHeaders[name] {
			continue
		}
		normalized[name] = strings.TrimSpace(strings.Join(values, ", "))
	}
	return normalized
}

// toText decodes bytes as UTF-8 text, replacing invalid sequences instead of
// rejecting them.
func toText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
