package anthropic

// Messages API request/response types. These mirror the subset of the
// API the invoker needs for single-turn prompt completion.

// messagesRequest is the request body for /messages.
type messagesRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []message      `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	Extra       map[string]any `json:"-"`
}

// message is one conversation turn.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the non-streaming response from /messages.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *usage         `json:"usage,omitempty"`
}

// contentBlock is one block of the assistant's reply. Only text blocks
// carry completion output.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// usage holds token accounting from the Messages API.
type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// errorResponse is the error envelope returned on non-2xx status.
type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// modelsResponse is the response from /models.
type modelsResponse struct {
	Data    []modelEntry `json:"data"`
	HasMore bool         `json:"has_more"`
}

// modelEntry represents a model in the /models response.
type modelEntry struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
