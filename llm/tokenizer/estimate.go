package tokenizer

import (
	"errors"
	"unicode"
)

// ErrNoDecode 表示估算器无法把 token 还原为文本
var ErrNoDecode = errors.New("estimator cannot decode tokens")

// EstimatorTokenizer 按字符类别估算 token 数：中日韩字符约 1.5 字符一个 token，
// 其余约 4 字符一个 token。不需要任何编码数据。
type EstimatorTokenizer struct {
	model   string
	context int
}

// NewEstimatorTokenizer 创建估算器，context <= 0 时使用 4096
func NewEstimatorTokenizer(model string, context int) *EstimatorTokenizer {
	if context <= 0 {
		context = 4096
	}
	return &EstimatorTokenizer{model: model, context: context}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var wide, narrow int
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	n := int(float64(wide)/1.5 + float64(narrow)/4)
	return max(n, 1), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := replyPrimer
	for _, m := range messages {
		n, _ := e.CountTokens(m.Content)
		total += n + perMessageOverhead
	}
	return total, nil
}

// Encode 返回与估算数量相同的占位 ID
func (e *EstimatorTokenizer) Encode(text string) ([]int, error) {
	n, _ := e.CountTokens(text)
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids, nil
}

func (e *EstimatorTokenizer) Decode([]int) (string, error) { return "", ErrNoDecode }

func (e *EstimatorTokenizer) MaxTokens() int { return e.context }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

func isWide(r rune) bool {
	switch {
	case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK 标点
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // 全角字符
		return true
	}
	return false
}
