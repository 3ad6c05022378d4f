package enhanced

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/localpilot/inference"
	"github.com/BaSui01/localpilot/llm/tokenizer"
	"go.uber.org/zap"
)

// 执行器声明的能力，同时也是规划器可返回的动作
const (
	ExportNavigate   = "navigate"
	ExportClick      = "click"
	ExportType       = "type"
	ExportScroll     = "scroll"
	ExportScreenshot = "screenshot"
	ExportDone       = "done"
)

// Step 是规划器返回的单个动作
type Step struct {
	Action   string `json:"action"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	DeltaY   int    `json:"delta_y,omitempty"`
	FullPage bool   `json:"full_page,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Describe renders the step as an output line.
func (s Step) Describe() string {
	switch s.Action {
	case ExportNavigate:
		return "navigate to " + s.URL
	case ExportClick:
		return "click " + s.Selector
	case ExportType:
		return fmt.Sprintf("type %q into %s", s.Text, s.Selector)
	case ExportScroll:
		return fmt.Sprintf("scroll by %d", s.DeltaY)
	case ExportScreenshot:
		if s.FullPage {
			return "take a full-page screenshot"
		}
		return "take a screenshot"
	default:
		return s.Action
	}
}

const plannerSystemPrompt = `You control a web browser to accomplish the user's goal.
Reply with exactly one JSON object describing the next step and nothing else:
{"action": "navigate|click|type|scroll|screenshot|done", "url": "", "selector": "", "text": "", "delta_y": 0, "full_page": false, "reason": ""}

Rules:
- navigate needs an absolute url
- click and type need a CSS selector; type also needs text
- take a screenshot when the goal mentions capturing or showing the page
- reply with done and a short summary in reason once the goal is met`

// Planner 让语言模型决定下一步
type Planner struct {
	model     LanguageModel
	modelName string
	tok       tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewPlanner 创建规划器。modelName 为空时由推理服务使用默认模型。
func NewPlanner(model LanguageModel, modelName string, tok tokenizer.Tokenizer, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{model: model, modelName: modelName, tok: tok, logger: logger}
}

// Next 根据目标、当前观察与已执行步骤返回下一步
func (p *Planner) Next(ctx context.Context, goal string, obs Observation, history []string) (Step, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Current page:\nURL: %s\nTitle: %s\n", obs.URL, obs.Title)
	if obs.Text != "" {
		fmt.Fprintf(&b, "Visible text:\n%s\n", obs.Text)
	}
	if len(history) > 0 {
		b.WriteString("\nSteps taken so far:\n")
		for i, h := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, h)
		}
	}
	b.WriteString("\nNext step JSON:")
	prompt := b.String()

	if n, err := p.tok.CountMessages([]tokenizer.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: prompt},
	}); err == nil {
		p.logger.Debug("planning next step", zap.Int("prompt_tokens", n), zap.Int("history", len(history)))
	}

	resp, err := p.model.Complete(ctx, inference.CompletionRequest{
		Model:       p.modelName,
		System:      plannerSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   300,
		Temperature: 0.1,
	})
	if err != nil {
		return Step{}, fmt.Errorf("planner request failed: %w", err)
	}
	return ParseStep(resp.Result)
}

// ParseStep 从模型回复中提取 JSON 动作，容忍代码块与前后多余文字
func ParseStep(raw string) (Step, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return Step{}, fmt.Errorf("planner reply contains no JSON object: %q", truncateForError(raw))
	}
	var st Step
	if err := json.Unmarshal([]byte(s[start:end+1]), &st); err != nil {
		return Step{}, fmt.Errorf("failed to parse planner reply: %w", err)
	}
	st.Action = strings.ToLower(strings.TrimSpace(st.Action))

	switch st.Action {
	case ExportNavigate:
		u, err := NavigableURL(st.URL)
		if err != nil {
			return Step{}, err
		}
		st.URL = u
	case ExportClick:
		if st.Selector == "" {
			return Step{}, fmt.Errorf("click step has no selector")
		}
	case ExportType:
		if st.Selector == "" {
			return Step{}, fmt.Errorf("type step has no selector")
		}
	case ExportScroll:
		if st.DeltaY == 0 {
			st.DeltaY = 600
		}
	case ExportScreenshot, ExportDone:
	default:
		return Step{}, fmt.Errorf("unknown planner action %q", st.Action)
	}
	return st, nil
}

func truncateForError(s string) string {
	const limit = 120
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}

// NavigableURL 补全缺省的 https 协议，只放行 http 与 https。
// file://、chrome:// 之类的地址会让页面内容经 Observe 回流给模型。
func NavigableURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("navigate step has no url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("navigate step has invalid url %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("navigate step uses unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("navigate step url %q has no host", raw)
	}
	return raw, nil
}
