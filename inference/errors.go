package inference

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/BaSui01/localpilot/llm"
	"github.com/BaSui01/localpilot/types"
)

// mapError 把 Provider 错误转换为带可操作提示的 types.Error
func (c *Client) mapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}

	var llmErr *llm.Error
	isLLM := errors.As(err, &llmErr)

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		host := dnsErr.Name
		if host == "" {
			host = hostOf(c.cfg.BaseURL)
		}
		return types.Errorf(types.ErrConnectivity, "Network error: could not resolve %s.", host).
			WithCause(err).WithHTTPStatus(http.StatusBadGateway)

	case isLLM && llmErr.Code == llm.ErrProviderUnavailable:
		return types.Errorf(types.ErrConnectivity,
			"Could not connect to the inference server at %s. Please make sure it is running.", c.cfg.BaseURL).
			WithCause(err).WithHTTPStatus(http.StatusBadGateway)

	case errors.Is(err, context.DeadlineExceeded) || (isLLM && llmErr.Code == llm.ErrUpstreamTimeout):
		return types.NewError(types.ErrTimeout,
			"Request to the inference server timed out. The model may still be loading or the prompt may be too complex.").
			WithCause(err).WithHTTPStatus(http.StatusGatewayTimeout).WithRetryable(true)

	case isLLM && llmErr.HTTPStatus == http.StatusBadRequest:
		if model == "" {
			model = c.cfg.DefaultModel
		}
		return types.Errorf(types.ErrInvalidRequest,
			"Bad request (400): %s. The model '%s' may not support this request format.", llmErr.Message, model).
			WithCause(err).WithHTTPStatus(http.StatusBadRequest)

	case isLLM && llmErr.Code == llm.ErrModelNotFound:
		return types.Errorf(types.ErrModelNotFound, "Model '%s' is not available: %s", model, llmErr.Message).
			WithCause(err).WithHTTPStatus(http.StatusNotFound)

	case isLLM && llmErr.Code == llm.ErrModelLoading:
		return types.Errorf(types.ErrUpstreamError,
			"The inference server is still loading a model (%s). Try again in a moment.", llmErr.Message).
			WithCause(err).WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)

	case isLLM && (llmErr.Code == llm.ErrUnauthorized || llmErr.Code == llm.ErrForbidden):
		return types.NewError(types.ErrAuthentication, llmErr.Message).
			WithCause(err).WithHTTPStatus(llmErr.HTTPStatus)

	case isLLM:
		return types.NewError(types.ErrUpstreamError, llmErr.Message).
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithRetryable(llmErr.Retryable)

	case errors.Is(err, context.Canceled):
		return err
	}
	return types.NewError(types.ErrUpstreamError, err.Error()).WithCause(err).WithHTTPStatus(http.StatusBadGateway)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// asLLMStatus returns the HTTP status reported by the server, ignoring
// statuses synthesized for transport failures.
func asLLMStatus(err error) (int, bool) {
	var e *llm.Error
	if errors.As(err, &e) && e.Cause == nil && e.HTTPStatus > 0 {
		return e.HTTPStatus, true
	}
	return 0, false
}
