package types

// Role values accepted in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	// Role of the author: system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Text content of the message.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Generation parameters use pointers so an omitted field falls back to the
// model's configured default instead of a zero value.
type ChatCompletionRequest struct {
	// Model identifier. If empty, the server default is used.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
	// Opaque session id returned by a previous response. Omitted or
	// unknown ids start a fresh conversation.
	// example: 6f1c0d0e-8a2b-4f5d-9c3e-2b7a1d4e5f60
	SessionID string `json:"session_id,omitempty"`
	// Ordered messages for this turn. History from the session is
	// prepended server-side.
	Messages []ChatMessage `json:"messages"`
	// If true, stream the response as server-sent events.
	// example: false
	Stream bool `json:"stream,omitempty"`
	// Sampling temperature; overrides the model default when set.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty"`
	// Nucleus sampling probability; overrides the model default when set.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty"`
	// Maximum number of new tokens; overrides the model default when set.
	// example: 256
	MaxTokens *int `json:"max_tokens,omitempty"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
	// Random seed; 0 or omitted lets the engine choose.
	// example: 42
	Seed int64 `json:"seed,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChoice is one generated alternative (the gateway always returns one).
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionResponse is the buffered (non-streaming) response body.
type ChatCompletionResponse struct {
	// Completion id.
	// example: chatcmpl-7b3e7a2c
	ID string `json:"id"`
	// Constant "chat.completion".
	Object string `json:"object"`
	// Creation time in unix seconds.
	Created int64 `json:"created"`
	// Model id that served the request.
	Model string `json:"model"`
	// Session id, newly generated when the request carried none.
	SessionID string       `json:"session_id"`
	Choices   []ChatChoice `json:"choices"`
	Usage     Usage        `json:"usage"`
}

// ChunkDelta is the incremental part of a streamed choice.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one streamed alternative.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed event. The first chunk of a stream
// carries the session id with an empty delta; the last carries a non-nil
// finish reason.
type ChatCompletionChunk struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	Created   int64         `json:"created"`
	Model     string        `json:"model"`
	SessionID string        `json:"session_id,omitempty"`
	Choices   []ChunkChoice `json:"choices"`
}

// ModelInfo is the static metadata exposed for one configured model.
type ModelInfo struct {
	// Model identifier.
	// example: tinyllama-q4
	ID string `json:"id"`
	// Constant "model".
	Object string `json:"object"`
	// Chat template kind: chatml, llama or raw.
	// example: chatml
	Template string `json:"template"`
	// Context window size in tokens.
	// example: 4096
	ContextSize int `json:"context_size"`
}

// ModelsResponse wraps GET /v1/models.
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: unknown-model
	Error string `json:"error" example:"model not found: unknown-model"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
