// Package replay turns persisted cache records back into human-usable forms:
// a streamed response body into a single completion object, and a recorded
// request into a standalone curl command.
package replay

import (
	"encoding/json"
	"sort"
	"strings"
)

const streamPrefix = "data: "

// Completion is the non-streamed form of a chat completion response,
// reconstructed from SSE chunks.
type Completion struct {
	ID      string          `json:"id,omitempty"`
	Object  string          `json:"object"`
	Created int64           `json:"created,omitempty"`
	Model   string          `json:"model,omitempty"`
	Choices []Choice        `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      Message         `json:"message"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	StopReason   json.RawMessage `json:"stop_reason,omitempty"`
}

type Message struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// chunk is the wire shape of one SSE payload.
type chunk struct {
	ID      string          `json:"id"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Usage   json.RawMessage `json:"usage"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		Logprobs     json.RawMessage `json:"logprobs"`
		FinishReason string          `json:"finish_reason"`
		StopReason   json.RawMessage `json:"stop_reason"`
	} `json:"choices"`
}

// IsStream reports whether a response body looks like an SSE stream.
func IsStream(body string) bool {
	return strings.Contains(body, streamPrefix)
}

// Reassemble reconstructs the complete completion from a streamed body:
// content deltas are concatenated, tool-call fragments merged by index
// (arguments concatenated, the other fields latched), and metadata taken
// from whichever chunk carries it. Malformed chunks are skipped.
func Reassemble(body string) Completion {
	completion := Completion{
		Object:  "chat.completion",
		Choices: []Choice{{}},
	}
	choice := &completion.Choices[0]
	toolCalls := make(map[int]*ToolCall)
	var content []string

	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		payload, ok := strings.CutPrefix(strings.TrimSpace(line), streamPrefix)
		if !ok || payload == "[DONE]" {
			continue
		}
		var c chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			continue
		}
		if completion.ID == "" {
			completion.ID = c.ID
		}
		if completion.Created == 0 {
			completion.Created = c.Created
		}
		if completion.Model == "" {
			completion.Model = c.Model
		}
		if c.Usage != nil {
			completion.Usage = c.Usage
		}
		if len(c.Choices) == 0 {
			continue
		}
		first := c.Choices[0]
		if first.Delta.Content != "" {
			content = append(content, first.Delta.Content)
		}
		for _, fragment := range first.Delta.ToolCalls {
			call, ok := toolCalls[fragment.Index]
			if !ok {
				call = &ToolCall{}
				toolCalls[fragment.Index] = call
			}
			if fragment.ID != "" {
				call.ID = fragment.ID
			}
			if fragment.Type != "" {
				call.Type = fragment.Type
			}
			if fragment.Function.Name != "" {
				call.Function.Name = fragment.Function.Name
			}
			call.Function.Arguments += fragment.Function.Arguments
		}
		if first.FinishReason != "" {
			choice.FinishReason = first.FinishReason
		}
		if first.StopReason != nil {
			choice.StopReason = first.StopReason
		}
		if first.Logprobs != nil {
			choice.Logprobs = first.Logprobs
		}
	}

	choice.Message.Role = "assistant"
	if len(toolCalls) > 0 {
		// a tool-call message carries no text content
		indexes := make([]int, 0, len(toolCalls))
		for index := range toolCalls {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)
		for _, index := range indexes {
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, *toolCalls[index])
		}
	} else if len(content) > 0 {
		joined := strings.Join(content, "")
		choice.Message.Content = &joined
	}
	return completion
}
