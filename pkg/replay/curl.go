package replay

import (
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/tapecache/tapecache/cache"
)

// restoredAuth is substituted for a masked authorization value so the emitted
// command picks the real token up from the environment.
const restoredAuth = "Bearer $API_TOKEN"

// skipHeaders are dropped from the command: curl computes them itself, or
// they only made sense on the original connection.
var skipHeaders = map[string]bool{
	"content-length":  true,
	"host":            true,
	"accept-encoding": true,
	"connection":      true,
}

// CurlCommand converts a recorded request into an equivalent standalone curl
// invocation. A masked authorization header is restored via an environment
// variable placeholder and hoisted to the front of the command line, where it
// is easy to spot.
func CurlCommand(req cache.RequestRecord) string {
	parts := []string{"curl"}
	if req.Method != http.MethodGet && req.Method != "" {
		parts = append(parts, "-X", req.Method)
	}

	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var headerParts []string
	for _, name := range names {
		if skipHeaders[strings.ToLower(name)] {
			continue
		}
		value := req.Headers[name]
		if strings.ToLower(name) == "authorization" && value == cache.AuthMask {
			parts = append(parts, "-H", `"`+name+": "+restoredAuth+`"`)
			continue
		}
		headerParts = append(headerParts, "-H", `"`+name+": "+value+`"`)
	}
	parts = append(parts, headerParts...)

	if req.Body != "" {
		parts = append(parts, "-d", shellQuote(req.Body))
	}

	url := strings.TrimRight(req.TargetURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	parts = append(parts, shellQuote(url))

	return strings.Join(parts, " ")
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// shellQuote single-quotes a value for the shell unless it is plainly safe.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
