package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type encodingInfo struct {
	prefix   string
	encoding string
	context  int
}

// 本地模型没有公开的 BPE 表，cl100k_base 的计数足够用于预算控制。
// 较长的前缀排在前面，保证 "phi-4-mini" 不会被 "phi-4" 匹配。
var knownEncodings = []encodingInfo{
	{"phi-4-mini", "cl100k_base", 128000},
	{"phi-4", "cl100k_base", 16384},
	{"phi-3.5-mini", "cl100k_base", 128000},
	{"qwen2.5", "cl100k_base", 32768},
	{"mistral-7b", "cl100k_base", 32768},
	{"deepseek-r1", "cl100k_base", 65536},
	{"gpt-4o-mini", "o200k_base", 128000},
	{"gpt-4o", "o200k_base", 128000},
}

var defaultEncoding = encodingInfo{encoding: "cl100k_base", context: 8192}

func lookupEncoding(model string) encodingInfo {
	m := strings.ToLower(model)
	for _, e := range knownEncodings {
		if strings.HasPrefix(m, e.prefix) {
			return e
		}
	}
	return defaultEncoding
}

// BPETokenizer 使用 tiktoken 编码精确计数，编码数据在第一次使用时加载
type BPETokenizer struct {
	info encodingInfo
	load func() (*tiktoken.Tiktoken, error)
}

// NewBPETokenizer 按模型名前缀选择编码，未知模型使用 cl100k_base / 8192
func NewBPETokenizer(model string) *BPETokenizer {
	info := lookupEncoding(model)
	return &BPETokenizer{
		info: info,
		load: sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
			enc, err := tiktoken.GetEncoding(info.encoding)
			if err != nil {
				return nil, fmt.Errorf("load %s encoding: %w", info.encoding, err)
			}
			return enc, nil
		}),
	}
}

func (b *BPETokenizer) Encode(text string) ([]int, error) {
	enc, err := b.load()
	if err != nil {
		return nil, err
	}
	return enc.Encode(text, nil, nil), nil
}

func (b *BPETokenizer) CountTokens(text string) (int, error) {
	ids, err := b.Encode(text)
	return len(ids), err
}

func (b *BPETokenizer) CountMessages(messages []Message) (int, error) {
	enc, err := b.load()
	if err != nil {
		return 0, err
	}
	total := replyPrimer
	for _, m := range messages {
		total += perMessageOverhead + len(enc.Encode(m.Role, nil, nil)) + len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

func (b *BPETokenizer) Decode(tokens []int) (string, error) {
	enc, err := b.load()
	if err != nil {
		return "", err
	}
	return enc.Decode(tokens), nil
}

func (b *BPETokenizer) MaxTokens() int { return b.info.context }

func (b *BPETokenizer) Name() string { return "tiktoken[" + b.info.encoding + "]" }
