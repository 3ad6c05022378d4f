package types

import "context"

// key 以类型参数区分取值类型，同名不同类型的 key 不会冲突
type key[T any] struct{ name string }

var (
	runIDKey  = key[string]{"run_id"}
	userIDKey = key[string]{"user_id"}
	rolesKey  = key[[]string]{"roles"}
)

func value[T any](ctx context.Context, k key[T]) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// WithRunID 记录当前自动化运行的 ID，日志与历史记录从这里取
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID 返回运行 ID，空串视为不存在
func RunID(ctx context.Context) (string, bool) {
	v, ok := value(ctx, runIDKey)
	return v, ok && v != ""
}

// WithUserID 记录认证后的调用方
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID 返回调用方 ID
func UserID(ctx context.Context) (string, bool) {
	v, ok := value(ctx, userIDKey)
	return v, ok && v != ""
}

// WithRoles 记录 JWT 中的角色
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// Roles 返回角色列表，空列表视为不存在
func Roles(ctx context.Context) ([]string, bool) {
	v, ok := value(ctx, rolesKey)
	return v, ok && len(v) > 0
}
