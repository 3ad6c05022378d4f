package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/BaSui01/localpilot/llm"
	"github.com/BaSui01/localpilot/llm/providers"
)

// maxEventSize 限制单个 SSE 行的长度
const maxEventSize = 1 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// frame 是一个 data 帧；部分服务在流中途用 {"error":...} 报告失败
type frame struct {
	providers.ChatCompletion
	Error json.RawMessage `json:"error,omitempty"`
}

// readEvents 读取 SSE 流直到 [DONE]、EOF 或 ctx 取消，然后关闭 body 与通道
func readEvents(ctx context.Context, body io.ReadCloser, provider string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(c llm.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(e *llm.Error) { send(llm.StreamChunk{Err: e}) }

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if !bytes.HasPrefix(line, dataPrefix) {
				continue // 空行、注释与 event: 行
			}
			data := bytes.TrimSpace(line[len(dataPrefix):])
			if bytes.Equal(data, doneMarker) {
				return
			}

			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				fail(&llm.Error{
					Code: llm.ErrUpstreamError, Message: "invalid stream frame: " + err.Error(),
					HTTPStatus: http.StatusBadGateway, Provider: provider, Cause: err,
				})
				return
			}
			if len(f.Error) > 0 && string(f.Error) != "null" {
				fail(providers.StatusError(http.StatusBadGateway, providers.ErrorMessage(bytes.NewReader(data)), provider))
				return
			}
			for _, c := range f.Chunks() {
				if !send(c) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			fail(providers.TransportError(err, provider))
		}
	}()
	return ch
}
