package basic

import (
	"regexp"

	"github.com/BaSui01/localpilot/automation"
)

// FallbackURL is visited when a prompt expresses no navigation intent.
const FallbackURL = "https://example.com"

// AmbiguousTargetMessage is returned when a navigation verb has no target.
const AmbiguousTargetMessage = "Could not determine which website to navigate to"

var (
	// 动词按整词匹配，visitor、reopened 不算导航
	navigationIntent = regexp.MustCompile(`(?i)\b(?:go to|visit|open|navigate to)\b`)
	navigationTarget = regexp.MustCompile(`(?i)\b(?:go to|visit|open|navigate to)\s+(?:https?://)?([a-zA-Z0-9-]+\.[a-zA-Z0-9-]+\.[a-zA-Z]{2,}|[a-zA-Z0-9-]+\.[a-zA-Z]{2,})`)
)

// Intent 是规则分类的结果
type Intent struct {
	URL string
	// Fallback 为 true 表示提示词没有导航意图，URL 为 FallbackURL
	Fallback bool
}

// Classify 按固定规则解析提示词：
//
//  1. 含导航动词且能提取域名：访问 https://<域名>
//  2. 含导航动词但没有域名：AMBIGUOUS_INTENT
//  3. 不含导航动词：访问 FallbackURL
func Classify(prompt string) (Intent, error) {
	if !navigationIntent.MatchString(prompt) {
		return Intent{URL: FallbackURL, Fallback: true}, nil
	}
	m := navigationTarget.FindStringSubmatch(prompt)
	if m == nil {
		return Intent{}, automation.AmbiguousIntent(AmbiguousTargetMessage)
	}
	return Intent{URL: "https://" + m[1]}, nil
}
