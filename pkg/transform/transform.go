// Package transform mutates request and response records in place according
// to ordered, template-driven rules. Templates are rendered against a narrow,
// enumerated context; they are not a scripting surface.
//
// Available template tags:
//
//	{timestamp}       current wall clock as unix seconds
//	{header.<name>}   current value of a header (header rules)
//	{body.<field>}    current value of a top-level body field (body rules)
//	{index}           zero-based line index (streamed body rules only)
package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fasttemplate"
)

// Rule assigns the rendered template to the named field of a header mapping
// or a JSON body object.
type Rule struct {
	Field    string `koanf:"field" yaml:"field"`
	Template string `koanf:"template" yaml:"template"`
}

// Rules apply in list order; each rule sees the mutations of the previous
// ones.
type Rules []Rule

// Hooks is the transform configuration for one direction (request or
// response). Header rules run before body rules.
type Hooks struct {
	Headers Rules `koanf:"transform_headers" yaml:"transform_headers"`
	Body    Rules `koanf:"transform_body" yaml:"transform_body"`
}

// Apply mutates headers in place and returns the transformed body.
func (h Hooks) Apply(headers map[string]string, body string) string {
	ApplyHeaders(h.Headers, headers)
	return ApplyBody(h.Body, body)
}

// ApplyHeaders runs header rules against the mapping. A rule whose template
// cannot be rendered is logged and skipped.
func ApplyHeaders(rules Rules, headers map[string]string) {
	for _, rule := range rules {
		value, err := render(rule.Template, headerContext(headers))
		if err != nil {
			log.Warn().Err(err).Str("field", rule.Field).Msg("Could not render header rule")
			continue
		}
		headers[strings.ToLower(rule.Field)] = value
	}
}

// streamPrefix marks a server-sent-event chunk line.
const streamPrefix = "data: "

// ApplyBody runs body rules and returns the transformed body. Body mutation
// is best-effort: if the body cannot be parsed or a template cannot be
// rendered, the failure is logged and the original body is returned
// unchanged. A body starting with the SSE marker is transformed chunk by
// chunk instead.
func ApplyBody(rules Rules, body string) string {
	if len(rules) == 0 || body == "" {
		return body
	}
	if strings.HasPrefix(body, streamPrefix) {
		return applyStream(rules, body)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		log.Warn().Err(err).Msg("Could not parse body for transform")
		return body
	}
	out := body
	for _, rule := range rules {
		value, err := render(rule.Template, bodyContext(obj, -1))
		if err != nil {
			log.Warn().Err(err).Str("field", rule.Field).Msg("Could not render body rule")
			return body
		}
		obj[rule.Field] = value
		b, err := json.Marshal(obj)
		if err != nil {
			log.Warn().Err(err).Msg("Could not serialize transformed body")
			return body
		}
		out = string(b)
	}
	return out
}

// applyStream transforms an SSE body line by line. Only lines of the shape
// `data: {...}` are parsed and mutated; everything else, including the
// terminal `data: [DONE]` sentinel, passes through byte for byte.
func applyStream(rules Rules, body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		payload, ok := strings.CutPrefix(line, streamPrefix)
		if !ok || !strings.HasPrefix(payload, "{") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			log.Warn().Err(err).Int("line", i).Msg("Could not parse stream chunk for transform")
			continue
		}
		rendered := true
		for _, rule := range rules {
			value, err := render(rule.Template, bodyContext(obj, i))
			if err != nil {
				log.Warn().Err(err).Str("field", rule.Field).Int("line", i).
					Msg("Could not render body rule for stream chunk")
				rendered = false
				break
			}
			obj[rule.Field] = value
		}
		if !rendered {
			continue
		}
		b, err := json.Marshal(obj)
		if err != nil {
			log.Warn().Err(err).Int("line", i).Msg("Could not serialize stream chunk")
			continue
		}
		lines[i] = streamPrefix + string(b)
	}
	return strings.Join(lines, "\n")
}

// context resolves a template tag to its value.
type context func(tag string) (string, bool)

func headerContext(headers map[string]string) context {
	return func(tag string) (string, bool) {
		if name, ok := strings.CutPrefix(tag, "header."); ok {
			value, ok := headers[strings.ToLower(name)]
			return value, ok
		}
		if tag == "timestamp" {
			return timestamp(), true
		}
		return "", false
	}
}

func bodyContext(obj map[string]any, index int) context {
	return func(tag string) (string, bool) {
		if field, ok := strings.CutPrefix(tag, "body."); ok {
			value, ok := obj[field]
			if !ok {
				return "", false
			}
			return stringify(value), true
		}
		switch tag {
		case "timestamp":
			return timestamp(), true
		case "index":
			if index < 0 {
				return "", false
			}
			return strconv.Itoa(index), true
		}
		return "", false
	}
}

func render(template string, ctx context) (string, error) {
	t, err := fasttemplate.NewTemplate(template, "{", "}")
	if err != nil {
		return "", err
	}
	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		value, ok := ctx(tag)
		if !ok {
			return 0, fmt.Errorf("unknown template variable %q", tag)
		}
		return io.WriteString(w, value)
	})
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(b)
}

func timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
