package ai

import "context"

// ChatMessage 對話訊息
type ChatMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// ChatRequest LLM 請求
type ChatRequest struct {
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Messages     []ChatMessage `json:"messages"`
	Temperature  float64       `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
}

// Backend LLM 後端的最小介面；管線各階段只依賴此介面
type Backend interface {
	Chat(ctx context.Context, req *ChatRequest) (string, error)
}
