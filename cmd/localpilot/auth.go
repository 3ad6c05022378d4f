package main

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/api/handlers"
	"github.com/BaSui01/localpilot/config"
	"github.com/BaSui01/localpilot/types"
)

// skipAuth 是无需认证的探活与指标端点
var skipAuth = map[string]struct{}{
	"/health": {}, "/healthz": {}, "/ready": {}, "/readyz": {}, "/version": {}, "/metrics": {},
}

func unauthorized(w http.ResponseWriter, code types.ErrorCode, msg string) {
	handlers.WriteErrorMessage(w, http.StatusUnauthorized, code, msg, nil)
}

// APIKeyAuth 校验 X-API-Key（允许时也接受 ?api_key=，供 WebSocket 客户端使用）。
// 未配置任何 key 时放行全部请求：默认只监听本机。
func APIKeyAuth(keys []string, allowQuery bool, logger *zap.Logger) Middleware {
	valid := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid[k] = struct{}{}
		}
	}
	if len(valid) == 0 {
		logger.Warn("no API keys configured, HTTP API is unauthenticated")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, open := skipAuth[r.URL.Path]; open {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" && allowQuery {
				key = r.URL.Query().Get("api_key")
			}
			if _, ok := valid[key]; !ok {
				logger.Debug("rejected request without valid API key", zap.String("path", r.URL.Path))
				unauthorized(w, types.ErrUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// operatorClaims 是 localpilot 接受的令牌载荷；user_id 缺省时取 sub
type operatorClaims struct {
	UserID string   `json:"user_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *operatorClaims) user() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// jwtKeys 按签名算法返回校验密钥
type jwtKeys struct {
	secret []byte
	public *rsa.PublicKey
}

func loadJWTKeys(cfg config.JWTConfig, logger *zap.Logger) jwtKeys {
	keys := jwtKeys{secret: []byte(cfg.Secret)}
	if cfg.PublicKey != "" {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			logger.Warn("invalid RSA public key, RS256 tokens will be rejected", zap.Error(err))
		}
		keys.public = pub
	}
	return keys
}

func (k jwtKeys) lookup(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(k.secret) == 0 {
			return nil, errors.New("HS256 secret not configured")
		}
		return k.secret, nil
	case *jwt.SigningMethodRSA:
		if k.public == nil {
			return nil, errors.New("RS256 public key not configured")
		}
		return k.public, nil
	}
	return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
}

// JWTAuth 校验 Authorization: Bearer 令牌（HS256 或 RS256），
// 并把用户与角色写入请求上下文。
func JWTAuth(cfg config.JWTConfig, logger *zap.Logger) Middleware {
	keys := loadJWTKeys(cfg, logger)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, open := skipAuth[r.URL.Path]; open {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, types.ErrAuthentication, "missing or malformed Authorization header")
				return
			}

			var claims operatorClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keys.lookup); err != nil {
				logger.Debug("token rejected", zap.Error(err))
				unauthorized(w, types.ErrAuthentication, "invalid or expired token")
				return
			}

			ctx := r.Context()
			if u := claims.user(); u != "" {
				ctx = types.WithUserID(ctx, u)
			}
			if len(claims.Roles) > 0 {
				ctx = types.WithRoles(ctx, claims.Roles)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
