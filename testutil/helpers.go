package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/localpilot/types"
)

// defaultTestTimeout 足够覆盖一次完整的 demo 运行（导航 + 截图 + 清理）
const defaultTestTimeout = 30 * time.Second

// TestContext 返回在测试结束时自动取消的上下文
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文，用于验证 ctx 先于浏览器动作被检查
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertErrorCode 断言 err 链上存在指定错误码的 types.Error
func AssertErrorCode(t testing.TB, err error, code types.ErrorCode) bool {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %s, got nil", code)
		return false
	}
	return assert.Equal(t, code, types.GetErrorCode(err), "error: %v", err)
}

// AssertLinesContain 断言运行输出中至少一行包含 substr
func AssertLinesContain(t testing.TB, lines []string, substr string) bool {
	t.Helper()
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	t.Errorf("no output line contains %q:\n  %s", substr, strings.Join(lines, "\n  "))
	return false
}

// AssertEventuallyTrue 每 10ms 轮询一次 cond，直到为真或超时
func AssertEventuallyTrue(t testing.TB, cond func() bool, timeout time.Duration) bool {
	t.Helper()
	return assert.Eventually(t, cond, timeout, 10*time.Millisecond)
}

// WaitForChannel 在 timeout 内接收一个值
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-timer.C:
		var zero T
		return zero, false
	}
}
