// Package provider defines the static adapter descriptors for the supported
// AI completion vendors and the pure resolver that selects one.
//
// A Descriptor knows how to build a vendor request body, extract the reply
// text from a vendor response, and build auth headers. Descriptors hold no
// state and perform no I/O; the dispatch package owns the HTTP call.
package provider

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const userAgent = "chatrelay/2.0"

// Config carries the per-call settings threaded into a descriptor. Nothing
// here is read from the environment; the config package does that once at
// startup.
type Config struct {
	// Endpoint overrides the descriptor's base URL when non-empty.
	Endpoint     string
	Token        string
	SystemPrompt string
	// Provider forces a specific adapter by registry key; empty means
	// auto-detect from Endpoint.
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// model returns the configured model or the descriptor default.
func (c Config) model(d Descriptor) string {
	if c.Model != "" {
		return c.Model
	}
	return d.DefaultModel()
}

// Descriptor is the static adapter definition for one vendor.
type Descriptor interface {
	Name() string
	BaseURL() string
	DefaultModel() string
	SupportedModels() []string

	// FormatRequest builds the vendor request body for one user message.
	FormatRequest(message string, cfg Config) interface{}

	// ParseResponse extracts the reply text from a decoded vendor response.
	// The second return is false when no usable text is present.
	ParseResponse(data map[string]interface{}) (string, bool)

	// Headers builds the request headers for the given secret token.
	Headers(token string) map[string]string
}

// Registry singletons. Descriptors are immutable; resolution is a pure
// lookup.
var (
	OpenAI Descriptor = openAIDescriptor{}
	Azure  Descriptor = azureDescriptor{}
	Zhipu  Descriptor = zhipuDescriptor{}
	Baidu  Descriptor = baiduDescriptor{}
	Qwen   Descriptor = qwenDescriptor{}
)

var registry = map[string]Descriptor{
	"openai": OpenAI,
	"azure":  Azure,
	"zhipu":  Zhipu,
	"baidu":  Baidu,
	"qwen":   Qwen,
}

// Names returns the registry keys of all known descriptors.
func Names() []string {
	return []string{"openai", "azure", "zhipu", "baidu", "qwen"}
}

// Known reports whether name is a registry key, case-insensitively.
func Known(name string) bool {
	_, ok := registry[strings.ToLower(name)]
	return ok
}

// Resolve selects a descriptor. A known explicit name wins; an unknown name
// falls through to URL-based detection rather than failing. URL detection
// matches vendor substrings case-insensitively in a fixed priority order.
// The generic OpenAI-compatible descriptor is the default.
func Resolve(explicitName, urlHint string) Descriptor {
	if d, ok := registry[strings.ToLower(explicitName)]; ok {
		return d
	}

	u := strings.ToLower(urlHint)
	switch {
	case strings.Contains(u, "openai.azure.com"):
		return Azure
	case strings.Contains(u, "bigmodel.cn"):
		return Zhipu
	case strings.Contains(u, "baidubce.com"):
		return Baidu
	case strings.Contains(u, "dashscope.aliyuncs.com"):
		return Qwen
	}

	return OpenAI
}

// jsonHeaders is the shared base for all vendors.
func jsonHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   userAgent,
	}
}

func bearerHeaders(token string) map[string]string {
	h := jsonHeaders()
	h["Authorization"] = "Bearer " + token
	return h
}

// chatMessages builds the standard system+user message pair.
func chatMessages(message string, cfg Config) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: message},
	}
}

// chatCompletionText extracts choices[0].message.content.
func chatCompletionText(data map[string]interface{}) (string, bool) {
	choices, ok := data["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	msg, ok := first["message"].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := msg["content"].(string)
	return content, ok && content != ""
}

func stringField(data map[string]interface{}, key string) (string, bool) {
	s, ok := data[key].(string)
	return s, ok && s != ""
}

// ── OpenAI / OpenAI-compatible ──────────────────────────────

type openAIDescriptor struct{}

func (openAIDescriptor) Name() string         { return "OpenAI" }
func (openAIDescriptor) BaseURL() string      { return "https://api.openai.com/v1/chat/completions" }
func (openAIDescriptor) DefaultModel() string { return "gpt-3.5-turbo" }
func (openAIDescriptor) SupportedModels() []string {
	return []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "gpt-4o"}
}

func (d openAIDescriptor) FormatRequest(message string, cfg Config) interface{} {
	return openai.ChatCompletionRequest{
		Model:       cfg.model(d),
		Messages:    chatMessages(message, cfg),
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
	}
}

// ParseResponse accepts the standard chat-completion shape and falls back to
// the loose top-level fields some OpenAI-compatible gateways return.
func (openAIDescriptor) ParseResponse(data map[string]interface{}) (string, bool) {
	if text, ok := chatCompletionText(data); ok {
		return text, true
	}
	for _, key := range []string{"response", "text", "content"} {
		if text, ok := stringField(data, key); ok {
			return text, true
		}
	}
	return "", false
}

func (openAIDescriptor) Headers(token string) map[string]string {
	return bearerHeaders(token)
}

// ── Azure OpenAI ────────────────────────────────────────────

type azureDescriptor struct{}

func (azureDescriptor) Name() string { return "Azure OpenAI" }

// BaseURL is empty: Azure deployments have per-resource endpoints, so the
// configured endpoint is required.
func (azureDescriptor) BaseURL() string      { return "" }
func (azureDescriptor) DefaultModel() string { return "gpt-35-turbo" }
func (azureDescriptor) SupportedModels() []string {
	return []string{"gpt-35-turbo", "gpt-4", "gpt-4-32k"}
}

// FormatRequest omits the model field; Azure routes by deployment in the URL.
func (azureDescriptor) FormatRequest(message string, cfg Config) interface{} {
	return struct {
		Messages    []openai.ChatCompletionMessage `json:"messages"`
		MaxTokens   int                            `json:"max_tokens"`
		Temperature float64                        `json:"temperature"`
	}{
		Messages:    chatMessages(message, cfg),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

func (azureDescriptor) ParseResponse(data map[string]interface{}) (string, bool) {
	return chatCompletionText(data)
}

func (azureDescriptor) Headers(token string) map[string]string {
	h := jsonHeaders()
	h["api-key"] = token
	return h
}

// ── Zhipu GLM ───────────────────────────────────────────────

type zhipuDescriptor struct{}

func (zhipuDescriptor) Name() string { return "Zhipu GLM" }
func (zhipuDescriptor) BaseURL() string {
	return "https://open.bigmodel.cn/api/paas/v4/chat/completions"
}
func (zhipuDescriptor) DefaultModel() string { return "glm-4" }
func (zhipuDescriptor) SupportedModels() []string {
	return []string{"glm-4", "glm-3-turbo"}
}

func (d zhipuDescriptor) FormatRequest(message string, cfg Config) interface{} {
	return openai.ChatCompletionRequest{
		Model:       cfg.model(d),
		Messages:    chatMessages(message, cfg),
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
	}
}

func (zhipuDescriptor) ParseResponse(data map[string]interface{}) (string, bool) {
	return chatCompletionText(data)
}

func (zhipuDescriptor) Headers(token string) map[string]string {
	return bearerHeaders(token)
}

// ── Baidu ERNIE ─────────────────────────────────────────────

type baiduDescriptor struct{}

func (baiduDescriptor) Name() string { return "ERNIE Bot" }
func (baiduDescriptor) BaseURL() string {
	return "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/completions"
}
func (baiduDescriptor) DefaultModel() string { return "ernie-bot" }
func (baiduDescriptor) SupportedModels() []string {
	return []string{"ernie-bot", "ernie-bot-turbo"}
}

// FormatRequest folds the system prompt into the single user message; ERNIE
// has no system role in this API.
func (baiduDescriptor) FormatRequest(message string, cfg Config) interface{} {
	return struct {
		Messages        []openai.ChatCompletionMessage `json:"messages"`
		MaxOutputTokens int                            `json:"max_output_tokens"`
		Temperature     float64                        `json:"temperature"`
	}{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: cfg.SystemPrompt + "\n\n" + message},
		},
		MaxOutputTokens: cfg.MaxTokens,
		Temperature:     cfg.Temperature,
	}
}

func (baiduDescriptor) ParseResponse(data map[string]interface{}) (string, bool) {
	return stringField(data, "result")
}

// Headers carries no auth header; Baidu expects the access token as a query
// parameter on the configured endpoint.
func (baiduDescriptor) Headers(token string) map[string]string {
	return jsonHeaders()
}

// ── Qwen (DashScope) ────────────────────────────────────────

type qwenDescriptor struct{}

func (qwenDescriptor) Name() string { return "Qwen" }
func (qwenDescriptor) BaseURL() string {
	return "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
}
func (qwenDescriptor) DefaultModel() string { return "qwen-turbo" }
func (qwenDescriptor) SupportedModels() []string {
	return []string{"qwen-turbo", "qwen-plus", "qwen-max"}
}

func (d qwenDescriptor) FormatRequest(message string, cfg Config) interface{} {
	type input struct {
		Messages []openai.ChatCompletionMessage `json:"messages"`
	}
	type parameters struct {
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	return struct {
		Model      string     `json:"model"`
		Input      input      `json:"input"`
		Parameters parameters `json:"parameters"`
	}{
		Model:      cfg.model(d),
		Input:      input{Messages: chatMessages(message, cfg)},
		Parameters: parameters{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature},
	}
}

// ParseResponse prefers output.text, then output.choices[0].message.content.
func (qwenDescriptor) ParseResponse(data map[string]interface{}) (string, bool) {
	output, ok := data["output"].(map[string]interface{})
	if !ok {
		return "", false
	}
	if text, ok := stringField(output, "text"); ok {
		return text, true
	}
	return chatCompletionText(output)
}

func (qwenDescriptor) Headers(token string) map[string]string {
	return bearerHeaders(token)
}
