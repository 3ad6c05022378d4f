package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// offline 模拟编码数据无法加载的 BPE 分词器
type offline struct{}

var errOffline = errors.New("encoding data unavailable")

func (offline) CountTokens(string) (int, error)      { return 0, errOffline }
func (offline) CountMessages([]Message) (int, error) { return 0, errOffline }
func (offline) Encode(string) ([]int, error)         { return nil, errOffline }
func (offline) Decode([]int) (string, error)         { return "", errOffline }
func (offline) MaxTokens() int                       { return 2048 }
func (offline) Name() string                         { return "offline" }

func TestEstimator(t *testing.T) {
	e := NewEstimatorTokenizer("m", 0)
	assert.Equal(t, 4096, e.MaxTokens())

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{strings.Repeat("a", 400), 100},
		{"你好世界", 2},
		{"こんにちは", 3},
	}
	for _, tt := range tests {
		n, err := e.CountTokens(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "text %q", tt.text)
	}

	n, err := e.CountMessages([]Message{{Role: "user", Content: strings.Repeat("a", 40)}})
	require.NoError(t, err)
	assert.Equal(t, 10+perMessageOverhead+replyPrimer, n)

	_, err = e.Decode([]int{0})
	assert.ErrorIs(t, err, ErrNoDecode)
}

func TestLookupEncoding_LongestPrefixFirst(t *testing.T) {
	assert.Equal(t, 128000, lookupEncoding("phi-4-mini-instruct").context)
	assert.Equal(t, 16384, lookupEncoding("Phi-4").context)
	assert.Equal(t, "o200k_base", lookupEncoding("gpt-4o-mini").encoding)
	assert.Equal(t, defaultEncoding, lookupEncoding("some-local-model"))

	b := NewBPETokenizer("qwen2.5-0.5b")
	assert.Equal(t, 32768, b.MaxTokens())
	assert.Equal(t, "tiktoken[cl100k_base]", b.Name())
}

func TestChain_FallsBackWhenOffline(t *testing.T) {
	c := &chain{exact: offline{}, approx: NewEstimatorTokenizer("m", 2048)}

	n, err := c.CountTokens(strings.Repeat("b", 80))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	ids, err := c.Encode(strings.Repeat("b", 8))
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	assert.Equal(t, "estimator", c.Name())
	assert.Equal(t, 2048, c.MaxTokens())

	_, err = c.Decode([]int{1})
	assert.ErrorIs(t, err, errOffline)
}

func TestTruncate(t *testing.T) {
	e := NewEstimatorTokenizer("m", 0)
	page := strings.Repeat("word ", 200) // 1000 字符，约 250 token

	out, n, cut := Truncate(e, page, 50)
	assert.True(t, cut)
	assert.LessOrEqual(t, n, 50)
	assert.True(t, strings.HasPrefix(page, out))

	out, n, cut = Truncate(e, "short", 50)
	assert.False(t, cut)
	assert.Equal(t, "short", out)
	assert.Equal(t, 1, n)

	out, _, cut = Truncate(e, page, 0)
	assert.False(t, cut)
	assert.Equal(t, page, out)
}

func TestTruncate_ResultIsPrefixWithinBudget(t *testing.T) {
	e := NewEstimatorTokenizer("m", 0)
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		budget := rapid.IntRange(1, 64).Draw(t, "budget")

		out, n, _ := Truncate(e, text, budget)
		if n > budget {
			t.Fatalf("truncated to %d tokens, budget %d", n, budget)
		}
		if !strings.HasPrefix(text, out) {
			t.Fatalf("truncated text is not a prefix")
		}
	})
}
