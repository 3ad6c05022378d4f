package basic

import (
	"strings"
	"testing"

	"github.com/BaSui01/localpilot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		prompt   string
		url      string
		fallback bool
		code     types.ErrorCode
	}{
		{"Go to example.com and take a screenshot", "https://example.com", false, ""},
		{"please VISIT https://github.com/features", "https://github.com", false, ""},
		{"navigate to www.bing.com", "https://www.bing.com", false, ""},
		{"open news.ycombinator.com", "https://news.ycombinator.com", false, ""},
		{"Open http://my-site.io now", "https://my-site.io", false, ""},
		{"Open the settings", "", false, types.ErrAmbiguousIntent},
		{"go to the store", "", false, types.ErrAmbiguousIntent},
		{"take a screenshot of something", FallbackURL, true, ""},
		{"count the visitor numbers", FallbackURL, true, ""},
		{"the tab was reopened", FallbackURL, true, ""},
		{"find the bottle opener", FallbackURL, true, ""},
		{"reopen example.com", FallbackURL, true, ""},
		{"", FallbackURL, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			intent, err := Classify(tt.prompt)
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, types.GetErrorCode(err))
				assert.Contains(t, err.Error(), AmbiguousTargetMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.url, intent.URL)
			assert.Equal(t, tt.fallback, intent.Fallback)
		})
	}
}

// 不含任何导航动词的提示词一定回退到 example.com
func TestClassify_NoIntentAlwaysFallsBack(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prompt := rapid.StringMatching(`[a-z ]{0,40}`).Draw(t, "prompt")
		lower := strings.ToLower(prompt)
		for _, verb := range []string{"go to", "visit", "open", "navigate to"} {
			if strings.Contains(lower, verb) {
				t.Skip("contains a navigation verb")
			}
		}
		intent, err := Classify(prompt)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !intent.Fallback || intent.URL != FallbackURL {
			t.Fatalf("expected fallback, got %+v", intent)
		}
	})
}

// "<动词> <域名>" 总是解析为 https://<域名>
func TestClassify_ExtractsDomain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		verb := rapid.SampledFrom([]string{"go to", "Visit", "OPEN", "navigate to"}).Draw(t, "verb")
		label := rapid.StringMatching(`[a-z0-9][a-z0-9-]{0,15}`).Draw(t, "label")
		tld := rapid.StringMatching(`[a-z]{2,6}`).Draw(t, "tld")
		scheme := rapid.SampledFrom([]string{"", "http://", "https://"}).Draw(t, "scheme")
		domain := label + "." + tld

		intent, err := Classify(verb + " " + scheme + domain)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if intent.URL != "https://"+domain {
			t.Fatalf("got %q, want https://%s", intent.URL, domain)
		}
	})
}
