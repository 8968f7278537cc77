package cache

// AuthMask replaces the authorization header value in persisted records.
// The mutation is irreversible and applies only to the stored copy.
const AuthMask = "***"

const authHeader = "authorization"

// RequestRecord is the working representation of an inbound request:
// the forwarded (possibly transform-mutated) request, and the request side
// of a persisted cache record. Header names are lowercase.
type RequestRecord struct {
	Method    string            `json:"method"`
	TargetURL string            `json:"target_url"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
}

// ResponseRecord is the working representation of an upstream outcome,
// either freshly forwarded or loaded from cache.
type ResponseRecord struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// CacheRecord is the persisted {request, response} pair, one JSON file per
// fingerprint.
type CacheRecord struct {
	Request  RequestRecord  `json:"request"`
	Response ResponseRecord `json:"response"`
}

// maskAuth returns a copy of headers with the authorization value masked.
// The input map is left untouched so the in-flight request keeps its token.
func maskAuth(headers map[string]string) map[string]string {
	masked := make(map[string]string, len(headers))
	for name, value := range headers {
		if name == authHeader {
			value = AuthMask
		}
		masked[name] = value
	}
	return masked
}
