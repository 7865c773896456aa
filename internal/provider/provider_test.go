package provider_test

import (
	"encoding/json"
	"testing"

	"github.com/chatrelay/chatrelay/internal/provider"
)

func TestResolve_ExplicitNameWins(t *testing.T) {
	// An explicit name overrides whatever the URL looks like.
	d := provider.Resolve("baidu", "https://api.openai.com/v1/chat/completions")
	if d.Name() != "ERNIE Bot" {
		t.Errorf("Resolve(baidu, openai url) = %q, want %q", d.Name(), "ERNIE Bot")
	}
}

func TestResolve_NameIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"Qwen", "QWEN", "qwen"} {
		d := provider.Resolve(name, "")
		if d.Name() != "Qwen" {
			t.Errorf("Resolve(%q, \"\") = %q, want %q", name, d.Name(), "Qwen")
		}
	}
}

func TestResolve_UnknownNameFallsThroughToURL(t *testing.T) {
	d := provider.Resolve("some-future-vendor", "https://open.bigmodel.cn/api/paas/v4/chat/completions")
	if d.Name() != "Zhipu GLM" {
		t.Errorf("unknown name should fall through to URL detection, got %q", d.Name())
	}
}

func TestResolve_URLDetection(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://myresource.openai.azure.com/openai/deployments/x/chat/completions", "Azure OpenAI"},
		{"https://open.bigmodel.cn/api/paas/v4/chat/completions", "Zhipu GLM"},
		{"https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/completions?access_token=abc", "ERNIE Bot"},
		{"https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation", "Qwen"},
		{"https://api.openai.com/v1/chat/completions", "OpenAI"},
		{"https://my-gateway.example.com/v1/chat/completions", "OpenAI"},
		{"", "OpenAI"},
	}
	for _, tt := range tests {
		d := provider.Resolve("", tt.url)
		if d.Name() != tt.want {
			t.Errorf("Resolve(\"\", %q) = %q, want %q", tt.url, d.Name(), tt.want)
		}
	}
}

func TestResolve_IsPure(t *testing.T) {
	a := provider.Resolve("openai", "")
	b := provider.Resolve("openai", "")
	if a != b {
		t.Error("Resolve should return the same descriptor instance for the same inputs")
	}
}

func TestNames(t *testing.T) {
	names := provider.Names()
	if len(names) != 5 {
		t.Fatalf("Names() returned %d entries, want 5", len(names))
	}
	for _, n := range names {
		if provider.Resolve(n, "").Name() == "" {
			t.Errorf("registry key %q does not resolve", n)
		}
		if !provider.Known(n) {
			t.Errorf("Known(%q) = false", n)
		}
	}
	if provider.Known("bedrock") {
		t.Error("Known(bedrock) = true, want false")
	}
}

func marshalRequest(t *testing.T, d provider.Descriptor, msg string, cfg provider.Config) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(d.FormatRequest(msg, cfg))
	if err != nil {
		t.Fatalf("marshal %s request: %v", d.Name(), err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s request: %v", d.Name(), err)
	}
	return m
}

func TestOpenAIFormatRequest(t *testing.T) {
	cfg := provider.Config{SystemPrompt: "be helpful", MaxTokens: 500, Temperature: 0.5}
	m := marshalRequest(t, provider.OpenAI, "hello", cfg)

	if m["model"] != "gpt-3.5-turbo" {
		t.Errorf("model = %v, want default gpt-3.5-turbo", m["model"])
	}
	if m["max_tokens"] != float64(500) {
		t.Errorf("max_tokens = %v, want 500", m["max_tokens"])
	}
	msgs, ok := m["messages"].([]interface{})
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v, want system+user pair", m["messages"])
	}
	first := msgs[0].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "be helpful" {
		t.Errorf("first message = %v, want system prompt", first)
	}
}

func TestAzureFormatRequest_OmitsModel(t *testing.T) {
	m := marshalRequest(t, provider.Azure, "hello", provider.Config{Model: "gpt-4", MaxTokens: 100})
	if _, ok := m["model"]; ok {
		t.Error("Azure request body must not carry a model field; the deployment URL routes it")
	}
	if m["max_tokens"] != float64(100) {
		t.Errorf("max_tokens = %v, want 100", m["max_tokens"])
	}
}

func TestBaiduFormatRequest(t *testing.T) {
	cfg := provider.Config{SystemPrompt: "be helpful", MaxTokens: 200, Temperature: 0.7}
	m := marshalRequest(t, provider.Baidu, "hello", cfg)

	if _, ok := m["max_output_tokens"]; !ok {
		t.Error("Baidu request should use max_output_tokens")
	}
	msgs := m["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("Baidu sends a single user message, got %d", len(msgs))
	}
	content := msgs[0].(map[string]interface{})["content"].(string)
	if content != "be helpful\n\nhello" {
		t.Errorf("Baidu folds the system prompt into the user message, got %q", content)
	}
}

func TestQwenFormatRequest(t *testing.T) {
	m := marshalRequest(t, provider.Qwen, "hello", provider.Config{MaxTokens: 100, Temperature: 0.7})

	input, ok := m["input"].(map[string]interface{})
	if !ok {
		t.Fatalf("Qwen request missing input block: %v", m)
	}
	if _, ok := input["messages"]; !ok {
		t.Error("Qwen input block missing messages")
	}
	params, ok := m["parameters"].(map[string]interface{})
	if !ok || params["max_tokens"] != float64(100) {
		t.Errorf("Qwen parameters = %v, want max_tokens 100", m["parameters"])
	}
	if m["model"] != "qwen-turbo" {
		t.Errorf("model = %v, want default qwen-turbo", m["model"])
	}
}

func TestHeaders(t *testing.T) {
	tests := []struct {
		desc      provider.Descriptor
		wantKey   string
		wantValue string
	}{
		{provider.OpenAI, "Authorization", "Bearer tok"},
		{provider.Zhipu, "Authorization", "Bearer tok"},
		{provider.Qwen, "Authorization", "Bearer tok"},
		{provider.Azure, "api-key", "tok"},
	}
	for _, tt := range tests {
		h := tt.desc.Headers("tok")
		if h[tt.wantKey] != tt.wantValue {
			t.Errorf("%s headers[%q] = %q, want %q", tt.desc.Name(), tt.wantKey, h[tt.wantKey], tt.wantValue)
		}
		if h["Content-Type"] != "application/json" {
			t.Errorf("%s missing Content-Type header", tt.desc.Name())
		}
	}

	// Baidu authenticates via query parameter, never a header.
	bh := provider.Baidu.Headers("tok")
	if _, ok := bh["Authorization"]; ok {
		t.Error("Baidu headers must not carry an Authorization header")
	}
}

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return m
}

func TestOpenAIParseResponse(t *testing.T) {
	text, ok := provider.OpenAI.ParseResponse(decode(t,
		`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	if !ok || text != "hi there" {
		t.Errorf("ParseResponse = (%q, %v), want (hi there, true)", text, ok)
	}
}

func TestOpenAIParseResponse_LooseFallbacks(t *testing.T) {
	for _, fixture := range []string{
		`{"response":"hi"}`,
		`{"text":"hi"}`,
		`{"content":"hi"}`,
	} {
		text, ok := provider.OpenAI.ParseResponse(decode(t, fixture))
		if !ok || text != "hi" {
			t.Errorf("ParseResponse(%s) = (%q, %v), want (hi, true)", fixture, text, ok)
		}
	}
}

func TestOpenAIParseResponse_Empty(t *testing.T) {
	for _, fixture := range []string{
		`{}`,
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":""}}]}`,
	} {
		if _, ok := provider.OpenAI.ParseResponse(decode(t, fixture)); ok {
			t.Errorf("ParseResponse(%s) = ok, want not ok", fixture)
		}
	}
}

func TestBaiduParseResponse(t *testing.T) {
	text, ok := provider.Baidu.ParseResponse(decode(t, `{"result":"answer","usage":{}}`))
	if !ok || text != "answer" {
		t.Errorf("ParseResponse = (%q, %v), want (answer, true)", text, ok)
	}
}

func TestQwenParseResponse(t *testing.T) {
	// output.text form
	text, ok := provider.Qwen.ParseResponse(decode(t, `{"output":{"text":"answer"}}`))
	if !ok || text != "answer" {
		t.Errorf("output.text form = (%q, %v), want (answer, true)", text, ok)
	}

	// output.choices form
	text, ok = provider.Qwen.ParseResponse(decode(t,
		`{"output":{"choices":[{"message":{"content":"answer"}}]}}`))
	if !ok || text != "answer" {
		t.Errorf("output.choices form = (%q, %v), want (answer, true)", text, ok)
	}

	if _, ok := provider.Qwen.ParseResponse(decode(t, `{"text":"answer"}`)); ok {
		t.Error("top-level text without output block should not parse")
	}
}
