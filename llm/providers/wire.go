package providers

import (
	"time"

	"github.com/BaSui01/localpilot/llm"
)

// ChatMessage 是 /chat/completions 中的一条消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ChatCompletionRequest 是 POST /chat/completions 的请求体
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// NewChatCompletionRequest 用 model 覆盖 req.Model
func NewChatCompletionRequest(req *llm.ChatRequest, model string, stream bool) ChatCompletionRequest {
	msgs := make([]ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ChatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
	}
	return ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

// Choice 在非流式响应中带 Message，在 SSE 帧中带 Delta
type Choice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Message      ChatMessage  `json:"message"`
	Delta        *ChatMessage `json:"delta,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *Usage) toLLM() *llm.ChatUsage {
	if u == nil {
		return nil
	}
	return &llm.ChatUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// ChatCompletion 是非流式响应，也是每个 SSE data 帧的结构
type ChatCompletion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// ToLLM 转换为 llm.ChatResponse
func (c ChatCompletion) ToLLM(provider string) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:       c.ID,
		Provider: provider,
		Model:    c.Model,
		Choices:  make([]llm.ChatChoice, len(c.Choices)),
	}
	for i, ch := range c.Choices {
		resp.Choices[i] = llm.ChatChoice{
			Index:        ch.Index,
			FinishReason: ch.FinishReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: ch.Message.Content, Name: ch.Message.Name},
		}
	}
	if u := c.Usage.toLLM(); u != nil {
		resp.Usage = *u
	}
	if c.Created > 0 {
		resp.Created = time.Unix(c.Created, 0)
	}
	return resp
}

// Chunks 把一个 SSE 帧拆成每个候选一个 StreamChunk；usage 只挂在最后一个上
func (c ChatCompletion) Chunks() []llm.StreamChunk {
	out := make([]llm.StreamChunk, 0, len(c.Choices))
	for _, ch := range c.Choices {
		chunk := llm.StreamChunk{ID: c.ID, Model: c.Model, FinishReason: ch.FinishReason}
		if ch.Delta != nil {
			chunk.Delta = ch.Delta.Content
		}
		out = append(out, chunk)
	}
	if u := c.Usage.toLLM(); u != nil {
		if len(out) == 0 {
			out = append(out, llm.StreamChunk{ID: c.ID, Model: c.Model})
		}
		out[len(out)-1].Usage = u
	}
	return out
}
