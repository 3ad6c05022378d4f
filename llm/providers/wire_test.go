package providers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/localpilot/llm"
)

func TestNewChatCompletionRequest(t *testing.T) {
	req := &llm.ChatRequest{
		Model:       "ignored",
		Messages:    []llm.Message{{Role: llm.RoleSystem, Content: "plan"}, {Role: llm.RoleUser, Content: "go", Name: "cli"}},
		MaxTokens:   256,
		Temperature: 0.2,
	}
	body := NewChatCompletionRequest(req, "phi-4-mini", true)

	assert.Equal(t, "phi-4-mini", body.Model)
	assert.True(t, body.Stream)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, ChatMessage{Role: "user", Content: "go", Name: "cli"}, body.Messages[1])
}

func TestChatCompletion_Chunks(t *testing.T) {
	frame := ChatCompletion{
		ID:    "s",
		Model: "phi-4-mini",
		Choices: []Choice{
			{Index: 0, Delta: &ChatMessage{Content: "a"}},
			{Index: 1, Delta: &ChatMessage{Content: "b"}, FinishReason: "length"},
		},
		Usage: &Usage{TotalTokens: 9},
	}
	chunks := frame.Chunks()
	require.Len(t, chunks, 2)
	assert.Nil(t, chunks[0].Usage)
	assert.Equal(t, 9, chunks[1].Usage.TotalTokens)
	assert.Equal(t, "length", chunks[1].FinishReason)

	usageOnly := ChatCompletion{ID: "s", Usage: &Usage{TotalTokens: 3}}.Chunks()
	require.Len(t, usageOnly, 1)
	assert.Empty(t, usageOnly[0].Delta)

	assert.Empty(t, ChatCompletion{}.Chunks())
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://localhost:5273/v1/models", JoinURL("http://localhost:5273/v1/", "/models"))
	assert.Equal(t, "http://localhost:5273/v1/models", JoinURL("http://localhost:5273/v1", "models"))
	assert.Equal(t, "http://localhost:5273", JoinURL("http://localhost:5273/", ""))
}

func TestBearer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Bearer(r, "")
	assert.Empty(t, r.Header.Get("Authorization"))

	Bearer(r, "foundry-local-key")
	assert.Equal(t, "Bearer foundry-local-key", r.Header.Get("Authorization"))
}

func TestFetchModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"phi-4-mini"}]}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
		}
	}))
	defer srv.Close()

	models, err := FetchModels(t.Context(), srv.Client(), srv.URL+"/v1", "", "lmstudio", nil)
	require.NoError(t, err)
	assert.Equal(t, []llm.Model{{ID: "phi-4-mini"}}, models)

	_, err = FetchModels(t.Context(), srv.Client(), srv.URL+"/api", "k", "lmstudio", Bearer)
	var e *llm.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, llm.ErrUnauthorized, e.Code)
	assert.Equal(t, "bad key", e.Message)
}
