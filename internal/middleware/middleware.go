// Package middleware 提供HTTP中间件
package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hissa/hissa/internal/security"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/logger"
)

// writeError 以统一响应格式输出错误
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   err,
	})
}

// RequestID 请求ID追踪
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestRecorder 请求指标记录函数
type RequestRecorder func(method, path string, status int, duration time.Duration)

// Logging 每个请求记录一条日志，并上报请求指标
func Logging(record RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			// 用路由模板作为指标标签，避免路径参数放大基数
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			logger.WithContext(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Msg("请求处理")

			if record != nil {
				record(r.Method, path, rw.statusCode, duration)
			}
		})
	}
}

// Recovery 捕获panic
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithContext(r.Context()).Error().
					Interface("panic", err).
					Str("stack", string(debug.Stack())).
					Msg("Panic recovered")
				writeError(w, apperrors.New(apperrors.CodeInternal, "服务器内部错误"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders 安全响应头
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// RateLimit 按调用方限流，未认证时按客户端地址
func RateLimit(rl *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl != nil && !rl.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, apperrors.New(apperrors.CodeRateLimited, "请求过于频繁，请稍后重试"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if p, ok := security.FromContext(r.Context()); ok && p.Subject != "" && p.Subject != security.Anonymous().Subject {
		return "sub:" + p.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// Authenticator 令牌认证
type Authenticator struct {
	tokens  *security.TokenManager
	enabled bool
}

// NewAuthenticator 创建认证器，enabled 为 false 时调用方一律视为管理员
func NewAuthenticator(tokens *security.TokenManager, enabled bool) *Authenticator {
	return &Authenticator{tokens: tokens, enabled: enabled}
}

// Authenticate 解析令牌并写入调用方
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r.WithContext(security.WithPrincipal(r.Context(), security.Anonymous())))
			return
		}

		token := security.ExtractToken(r)
		if token == "" {
			writeError(w, apperrors.New(apperrors.CodeUnauthorized, security.ErrMissingToken.Error()))
			return
		}
		p, err := a.tokens.Parse(token)
		if err != nil {
			logger.WithContext(r.Context()).Debug().Err(err).Msg("令牌校验失败")
			writeError(w, apperrors.New(apperrors.CodeUnauthorized, security.ErrInvalidToken.Error()))
			return
		}

		ctx := security.WithPrincipal(r.Context(), p)
		if p.SchoolID != "" {
			ctx = context.WithValue(ctx, logger.SchoolIDKey, p.SchoolID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole 角色检查
func RequireRole(roles ...security.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := security.FromContext(r.Context())
			if !ok {
				writeError(w, apperrors.New(apperrors.CodeUnauthorized, security.ErrMissingToken.Error()))
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeError(w, apperrors.New(apperrors.CodeForbidden, "权限不足"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
