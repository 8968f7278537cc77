// Package tapecache is a content-addressed recording proxy. It sits in front
// of named upstream targets, fingerprints each inbound request, and either
// replays a previously recorded response or forwards the request and records
// the exchange for future replay.
package tapecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tapecache/tapecache/cache"
	"github.com/tapecache/tapecache/config"
	"github.com/tapecache/tapecache/pkg/fingerprint"
	"github.com/tapecache/tapecache/pkg/transform"
)

// forwardTimeout bounds one outbound call, including redirects.
const forwardTimeout = 90 * time.Second

// hopHeaders are invalidated by body re-encoding and stripped from every
// response, cached or fresh, before it is returned.
var hopHeaders = []string{
	"transfer-encoding",
	"content-length",
	"content-encoding",
	"connection",
}

type Config struct {
	// Target configuration, immutable after construction.
	Targets *config.Config
	// Storage for cache records.
	Store *cache.Store
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// HTTP client for outbound calls. A redirect-following client with a
	// fixed timeout is used if nil.
	Client *http.Client
}

// TapeCache handles inbound requests of the form /<target-name>/<remainder>.
// It implements http.Handler.
type TapeCache struct {
	targets *config.Config
	store   *cache.Store
	finger  fingerprint.Computer
	client  *http.Client
	log     zerolog.Logger
}

// New initializes the proxy from a fully constructed configuration.
func New(cfg Config) *TapeCache {
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: forwardTimeout}
	}
	return &TapeCache{
		targets: cfg.Targets,
		store:   cfg.Store,
		finger:  fingerprint.NewComputer(cfg.Store.Dir),
		client:  client,
		log:     logger,
	}
}

// ServeHTTP implements the http.Handler interface.
func (t *TapeCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.log.Error().Err(err).Msg("Could not read request body")
		http.Error(w, "could not read request body", http.StatusBadRequest)
		return
	}

	name, rest, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if !ok || name == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	target, ok := t.targets.Resolve(name)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown target: %s", name), http.StatusNotFound)
		return
	}

	// the fingerprint covers the original request, before any transform
	// runs, so rules injecting non-deterministic values cannot turn every
	// request into a permanent miss
	cachePath := t.finger.CachePath(r.Method, r.URL.Path, r.Header, body)

	req := cache.RequestRecord{
		Method:    r.Method,
		TargetURL: target.URL,
		Path:      rest,
		Headers:   recordHeaders(r.Header),
		Body:      toText(body),
	}
	req.Body = target.Request.Apply(req.Headers, req.Body)

	reqLog := t.log.With().
		Str("target", name).
		Str("method", r.Method).
		Str("path", rest).
		Str("fingerprint", cache.Fingerprint(cachePath)).
		Logger()

	if !target.SaveOnly {
		res, err := t.store.Get(cachePath)
		if err != nil {
			reqLog.Error().Err(err).Msg("Could not read cache record")
			http.Error(w, "cache read failed", http.StatusInternalServerError)
			return
		}
		if res != nil {
			reqLog.Debug().Int("hit", 1).Msg("Replaying recorded response")
			t.respond(w, *res, target.Response)
			return
		}
	}

	res, err := t.forward(r.Context(), req)
	if err != nil {
		reqLog.Error().Err(err).Msg("Could not forward request")
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	if err := t.store.Put(cachePath, req, *res); err != nil {
		// favor availability over durability: the forwarded response is
		// still delivered even if recording it fails
		reqLog.Error().Err(err).Msg("Could not write cache record")
	}
	reqLog.Debug().Int("hit", 0).Int("status", res.StatusCode).Msg("Recorded upstream response")
	t.respond(w, *res, target.Response)
}

// forward issues the outbound call described by the (post-transform) request
// record. A network failure or timeout is not retried.
func (t *TapeCache) forward(ctx context.Context, req cache.RequestRecord) (*cache.ResponseRecord, error) {
	url := req.TargetURL
	if req.Path != "" {
		url = req.TargetURL + "/" + req.Path
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, url, strings.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	for name, value := range req.Headers {
		// the outbound transport recomputes the host header
		if name == "host" {
			continue
		}
		out.Header.Set(name, value)
	}
	res, err := t.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}
	return &cache.ResponseRecord{
		StatusCode: res.StatusCode,
		Headers:    recordHeaders(res.Header),
		Body:       toText(b),
	}, nil
}

func (t *TapeCache) respond(w http.ResponseWriter, res cache.ResponseRecord, hooks transform.Hooks) {
	for _, name := range hopHeaders {
		delete(res.Headers, name)
	}
	res.Body = hooks.Apply(res.Headers, res.Body)
	for name, value := range res.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(res.StatusCode)
	if _, err := io.WriteString(w, res.Body); err != nil {
		t.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

// recordHeaders flattens headers into the lowercase single-value mapping used
// in records.
func recordHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		flat[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return flat
}

// toText decodes bytes as text, replacing invalid UTF-8 instead of failing.
func toText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
