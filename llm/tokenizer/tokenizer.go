package tokenizer

// Tokenizer 统计文本与对话消息的 token 数，用于控制发给本地模型的上下文大小。
type Tokenizer interface {
	CountTokens(text string) (int, error)
	// CountMessages 包含每条消息的角色与分隔符开销
	CountMessages(messages []Message) (int, error)
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	// MaxTokens 是模型的上下文长度
	MaxTokens() int
	Name() string
}

// Message 是参与计数的一条对话消息
type Message struct {
	Role    string
	Content string
}

const (
	perMessageOverhead = 4
	replyPrimer        = 3
)

// ForModel 返回模型对应的分词器。BPE 编码数据按需加载，
// 加载失败（例如离线且无缓存）时每次调用都退回到估算器。
func ForModel(model string) Tokenizer {
	bpe := NewBPETokenizer(model)
	return &chain{exact: bpe, approx: NewEstimatorTokenizer(model, bpe.MaxTokens())}
}

// chain 优先使用精确分词器，出错时改用估算值
type chain struct {
	exact  Tokenizer
	approx Tokenizer
}

func (c *chain) CountTokens(text string) (int, error) {
	n, err := c.exact.CountTokens(text)
	if err != nil {
		return c.approx.CountTokens(text)
	}
	return n, nil
}

func (c *chain) CountMessages(messages []Message) (int, error) {
	n, err := c.exact.CountMessages(messages)
	if err != nil {
		return c.approx.CountMessages(messages)
	}
	return n, nil
}

func (c *chain) Encode(text string) ([]int, error) {
	ids, err := c.exact.Encode(text)
	if err != nil {
		return c.approx.Encode(text)
	}
	return ids, nil
}

// Decode 只能由精确分词器完成，估算器的 ID 不对应任何文本
func (c *chain) Decode(tokens []int) (string, error) { return c.exact.Decode(tokens) }

func (c *chain) MaxTokens() int { return c.exact.MaxTokens() }

func (c *chain) Name() string {
	if _, err := c.exact.CountTokens(""); err != nil {
		return c.approx.Name()
	}
	return c.exact.Name()
}

// Truncate 把 text 缩短到不超过 budget 个 token，返回结果文本、token 数与是否被截断。
// budget <= 0 不做限制。结果总是 text 的前缀。
func Truncate(t Tokenizer, text string, budget int) (string, int, bool) {
	total, err := t.CountTokens(text)
	if err != nil || budget <= 0 || total <= budget {
		return text, total, false
	}

	if ids, err := t.Encode(text); err == nil && len(ids) > budget {
		if head, err := t.Decode(ids[:budget]); err == nil && len(head) <= len(text) && text[:len(head)] == head {
			return head, budget, true
		}
	}

	// 按比例估计保留的字符数，超出时每轮收缩 10%
	runes := []rune(text)
	for keep := len(runes) * budget / total; keep > 0; keep = keep * 9 / 10 {
		head := string(runes[:keep])
		if n, err := t.CountTokens(head); err == nil && n <= budget {
			return head, n, true
		}
	}
	return "", 0, true
}
