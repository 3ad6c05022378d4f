package enhanced

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/llm/tokenizer"
	"github.com/BaSui01/localpilot/testutil"
	"github.com/BaSui01/localpilot/testutil/fakes"
	"github.com/BaSui01/localpilot/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAgentic(t *testing.T, page browser.Page, model LanguageModel, cfg Config) Engine {
	t.Helper()
	eng, err := NewAgentic(Deps{
		Page:      page,
		Model:     model,
		Config:    cfg,
		Logger:    zaptest.NewLogger(t),
		Tokenizer: tokenizer.NewEstimatorTokenizer("m", 0),
	})
	require.NoError(t, err)
	return eng
}

func TestNewAgentic_RequiresPageAndModel(t *testing.T) {
	_, err := NewAgentic(Deps{Model: mocks.NewMockLanguageModel()})
	assert.Error(t, err)
	_, err = NewAgentic(Deps{Page: fakes.NewPage()})
	assert.Error(t, err)
}

func TestAgentic_RunsPlannedSteps(t *testing.T) {
	page := fakes.NewPage()
	model := mocks.NewMockLanguageModel().WithResponses(
		`{"action":"navigate","url":"https://example.com"}`,
		`{"action":"type","selector":"#q","text":"pricing"}`,
		`{"action":"screenshot","full_page":true}`,
		`{"action":"done","reason":"captured the page"}`,
	)
	eng := newAgentic(t, page, model, Config{})

	raw, err := eng.Execute(testutil.TestContext(t), "find pricing and capture it")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Goal: find pricing and capture it",
		"Step 1: navigate to https://example.com",
		`Step 2: type "pricing" into #q`,
		"Step 3: take a full-page screenshot",
		"Done: captured the page",
	}, raw.Output)
	assert.Equal(t, "captured the page", raw.Summary)
	require.Len(t, raw.Images, 1)
	assert.True(t, strings.HasPrefix(raw.Images[0], "data:image/png;base64,"))

	assert.Equal(t, []string{"https://example.com"}, page.Visited())
	assert.Equal(t, []string{"type:#q=pricing"}, page.Actions())
	assert.Equal(t, 4, model.CallCount())
	assert.NoError(t, eng.Close(context.Background()))
}

func TestAgentic_RefusesLocalSchemes(t *testing.T) {
	page := fakes.NewPage()
	model := mocks.NewMockLanguageModel().WithResponses(`{"action":"navigate","url":"file:///etc/passwd"}`)
	eng := newAgentic(t, page, model, Config{})

	_, err := eng.Execute(testutil.TestContext(t), "read my password file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
	assert.Empty(t, page.Visited())

	// apply 自身也校验，不依赖规划器
	ag := eng.(*Agentic)
	err = ag.apply(testutil.TestContext(t), Step{Action: ExportNavigate, URL: "chrome://settings"}, &RawResult{})
	require.Error(t, err)
	assert.Empty(t, page.Visited())
}

func TestAgentic_StepLimitTakesFinalScreenshot(t *testing.T) {
	page := fakes.NewPage()
	model := mocks.NewMockLanguageModel().WithResponses(`{"action":"scroll"}`)
	eng := newAgentic(t, page, model, Config{MaxSteps: 2})

	raw, err := eng.Execute(testutil.TestContext(t), "keep scrolling")
	require.NoError(t, err)
	assert.Equal(t, 2, model.CallCount())
	assert.Contains(t, raw.Output, "Stopped after 2 steps")
	assert.Contains(t, raw.Output, "Captured final page state")
	assert.Len(t, raw.Images, 1)
	assert.Len(t, page.Shots(), 1)
}

func TestAgentic_StepErrorAborts(t *testing.T) {
	page := fakes.NewPage().FailActions(errors.New("no such element"))
	model := mocks.NewMockLanguageModel().WithResponses(`{"action":"click","selector":"#missing"}`)
	eng := newAgentic(t, page, model, Config{})

	_, err := eng.Execute(testutil.TestContext(t), "click it")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1 (click): no such element")
}

func TestAgentic_UnparseableReplyAborts(t *testing.T) {
	model := mocks.NewMockLanguageModel().WithResponses("I am just a chat model")
	eng := newAgentic(t, fakes.NewPage(), model, Config{})

	_, err := eng.Execute(testutil.TestContext(t), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestAgentic_HonoursCancellation(t *testing.T) {
	eng := newAgentic(t, fakes.NewPage(), mocks.NewMockLanguageModel(), Config{})
	_, err := eng.Execute(testutil.CancelledContext(), "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObserve_TruncatesToBudget(t *testing.T) {
	body := strings.Repeat("lorem ipsum ", 500)
	page := fakes.NewPage().WithHTML("<html><head><title>Long</title></head><body><p>"+body+"</p><script>var x=1;</script></body></html>", "Long")
	require.NoError(t, page.Navigate(context.Background(), "https://long.example"))

	obs, err := Observe(context.Background(), page, tokenizer.NewEstimatorTokenizer("m", 0), 100)
	require.NoError(t, err)
	assert.Equal(t, "https://long.example", obs.URL)
	assert.Equal(t, "Long", obs.Title)
	assert.True(t, obs.Truncated)
	assert.LessOrEqual(t, obs.Tokens, 100)
	assert.NotContains(t, obs.Text, "var x")
}

func TestProbeModel(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, probeModel(ctx, Deps{}))
	assert.Error(t, probeModel(ctx, Deps{Model: mocks.NewMockLanguageModel().WithLive(false)}))
	assert.NoError(t, probeModel(ctx, Deps{Model: mocks.NewMockLanguageModel()}))
}
