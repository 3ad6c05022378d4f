package enhanced

import (
	"context"
	"fmt"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/llm/tokenizer"
)

// Observation 是交给规划器的页面快照
type Observation struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Tokens    int    `json:"tokens"`
	Truncated bool   `json:"truncated"`
}

// Observe 读取页面地址、标题与可见文本，文本裁剪到 budget 个 token
func Observe(ctx context.Context, page browser.Page, tok tokenizer.Tokenizer, budget int) (Observation, error) {
	url, err := page.URL(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("read page url: %w", err)
	}
	html, err := page.Content(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("read page content: %w", err)
	}

	title := browser.TitleOf(html)
	if title == "" {
		if t, err := page.Title(ctx); err == nil {
			title = t
		}
	}
	text, n, cut := tokenizer.Truncate(tok, browser.VisibleText(html), budget)
	return Observation{URL: url, Title: title, Text: text, Tokens: n, Truncated: cut}, nil
}
