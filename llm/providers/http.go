package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/localpilot/llm"
)

// HeaderFunc 为每个请求设置认证头
type HeaderFunc func(r *http.Request, apiKey string)

// Bearer 是 OpenAI 兼容服务的默认认证方式；本地服务通常接受任意 key
func Bearer(r *http.Request, apiKey string) {
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
	r.Header.Set("Accept", "application/json")
}

// JoinURL 拼接服务根地址与路径，容忍两侧多余的斜杠
func JoinURL(base, path string) string {
	if path == "" {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Do 发送请求。传输错误与非 2xx 响应都转换为 *llm.Error；
// 成功时由调用方关闭 resp.Body。
func Do(client *http.Client, req *http.Request, provider string) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(err, provider)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, StatusError(resp.StatusCode, ErrorMessage(resp.Body), provider)
	}
	return resp, nil
}

// DecodeJSON 解码成功响应；格式错误按可重试的上游错误处理
func DecodeJSON(body io.Reader, dst any, what, provider string) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    fmt.Sprintf("invalid %s response: %v", what, err),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   provider,
			Cause:      err,
		}
	}
	return nil
}

// FetchModels 请求 GET {apiURL}/models 并返回服务端加载的模型
func FetchModels(ctx context.Context, client *http.Client, apiURL, apiKey, provider string, header HeaderFunc) ([]llm.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, JoinURL(apiURL, "models"), nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	if header == nil {
		header = Bearer
	}
	header(req, apiKey)

	resp, err := Do(client, req, provider)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list struct {
		Data []llm.Model `json:"data"`
	}
	if err := DecodeJSON(resp.Body, &list, "models", provider); err != nil {
		return nil, err
	}
	return list.Data, nil
}
