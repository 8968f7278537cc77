package replay

import (
	"strings"
	"testing"

	"github.com/tapecache/tapecache/cache"
)

const contentStream = `data: {"id":"cmpl-1","created":1700000000,"model":"test-model","choices":[{"delta":{"content":"Hello"}}]}
data: {"id":"cmpl-1","choices":[{"delta":{"content":", world"}}]}
data: {"id":"cmpl-1","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"total_tokens":3}}
data: [DONE]`

func TestReassembleContentStream(t *testing.T) {
	completion := Reassemble(contentStream)

	if completion.ID != "cmpl-1" || completion.Model != "test-model" || completion.Created != 1700000000 {
		t.Fatalf("metadata: %+v", completion)
	}
	if completion.Object != "chat.completion" {
		t.Fatalf("object is %q", completion.Object)
	}
	message := completion.Choices[0].Message
	if message.Role != "assistant" {
		t.Fatalf("role is %q", message.Role)
	}
	if message.Content == nil || *message.Content != "Hello, world" {
		t.Fatalf("content is %v", message.Content)
	}
	if completion.Choices[0].FinishReason != "stop" {
		t.Fatalf("finish_reason is %q", completion.Choices[0].FinishReason)
	}
	if string(completion.Usage) != `{"total_tokens":3}` {
		t.Fatalf("usage is %s", completion.Usage)
	}
}

const toolCallStream = `data: {"id":"cmpl-2","choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"lookup","arguments":"{\"q\":"}}]}}]}
data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}
data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"fetch","arguments":"{}"}}]}}]}
data: [DONE]`

func TestReassembleToolCallStream(t *testing.T) {
	completion := Reassemble(toolCallStream)

	message := completion.Choices[0].Message
	if message.Content != nil {
		t.Fatalf("content is %v with tool calls present", *message.Content)
	}
	if len(message.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls", len(message.ToolCalls))
	}
	first := message.ToolCalls[0]
	if first.ID != "call_a" || first.Function.Name != "lookup" {
		t.Fatalf("first call: %+v", first)
	}
	if first.Function.Arguments != `{"q":"go"}` {
		t.Fatalf("arguments not concatenated: %q", first.Function.Arguments)
	}
	if message.ToolCalls[1].ID != "call_b" {
		t.Fatalf("second call: %+v", message.ToolCalls[1])
	}
}

func TestReassembleSkipsMalformedChunks(t *testing.T) {
	body := "data: {broken\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\ndata: [DONE]"
	completion := Reassemble(body)

	message := completion.Choices[0].Message
	if message.Content == nil || *message.Content != "ok" {
		t.Fatalf("content is %v", message.Content)
	}
}

func TestIsStream(t *testing.T) {
	if !IsStream(contentStream) {
		t.Fatal("stream not detected")
	}
	if IsStream(`{"plain":"json"}`) {
		t.Fatal("plain body detected as stream")
	}
}

func TestCurlCommand(t *testing.T) {
	command := CurlCommand(cache.RequestRecord{
		Method:    "POST",
		TargetURL: "https://upstream.example/",
		Path:      "chat",
		Headers: map[string]string{
			"authorization":  cache.AuthMask,
			"content-type":   "application/json",
			"content-length": "42",
			"host":           "localhost:9999",
		},
		Body: `{"x":1}`,
	})

	if !strings.HasPrefix(command, "curl -X POST") {
		t.Fatalf("command is %q", command)
	}
	if !strings.Contains(command, `-H "authorization: Bearer $API_TOKEN"`) {
		t.Fatalf("auth not restored: %q", command)
	}
	if strings.Contains(command, "content-length") || strings.Contains(command, "host:") {
		t.Fatalf("skip headers present: %q", command)
	}
	if !strings.Contains(command, `-d '{"x":1}'`) {
		t.Fatalf("body missing: %q", command)
	}
	if !strings.HasSuffix(command, "https://upstream.example/chat") {
		t.Fatalf("url is wrong: %q", command)
	}
}

func TestCurlCommandGetWithoutBody(t *testing.T) {
	command := CurlCommand(cache.RequestRecord{
		Method:    "GET",
		TargetURL: "https://upstream.example",
		Path:      "items",
	})

	if strings.Contains(command, "-X") || strings.Contains(command, "-d") {
		t.Fatalf("command is %q", command)
	}
	if command != "curl https://upstream.example/items" {
		t.Fatalf("command is %q", command)
	}
}

func TestShellQuote(t *testing.T) {
	if q := shellQuote("safe/path._-"); q != "safe/path._-" {
		t.Fatalf("got %q", q)
	}
	if q := shellQuote(`{"a":"it's"}`); q != `'{"a":"it'"'"'s"}'` {
		t.Fatalf("got %q", q)
	}
}
