// Package security 提供令牌校验、调用方身份与频率限制
package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken      = errors.New("令牌未提供")
	ErrInvalidToken      = errors.New("无效的令牌")
	ErrRateLimitExceeded = errors.New("请求频率超限")
)

// Role 调用方角色
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleTeacher  Role = "teacher"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDirector, RoleTeacher:
		return true
	}
	return false
}

// Principal 已认证的调用方
type Principal struct {
	Subject  string `json:"sub"`
	Role     Role   `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
}

// IsAdmin 管理员可跨学校访问
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Anonymous 关闭认证时使用的调用方
func Anonymous() Principal {
	return Principal{Subject: "anonymous", Role: RoleAdmin}
}

type principalKey struct{}

// WithPrincipal 把调用方写入上下文
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext 读取调用方
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Claims JWT 声明
type Claims struct {
	Role     Role   `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager 签发与校验 HS256 令牌
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue 签发令牌
func (m *TokenManager) Issue(p Principal, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Role:     p.Role,
		SchoolID: p.SchoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse 校验令牌并返回调用方
func (m *TokenManager) Parse(token string) (Principal, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: 未知角色 %q", ErrInvalidToken, claims.Role)
	}
	// 非管理员必须归属某个学校
	if claims.Role != RoleAdmin && claims.SchoolID == "" {
		return Principal{}, fmt.Errorf("%w: 缺少 school_id", ErrInvalidToken)
	}
	return Principal{Subject: claims.Subject, Role: claims.Role, SchoolID: claims.SchoolID}, nil
}

// ExtractToken 从请求中提取令牌
func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie("hissa_token"); err == nil {
		return c.Value
	}
	return ""
}

// RateLimiter 按调用方的滑动窗口频率限制器
type RateLimiter struct {
	requests map[string][]time.Time // key -> request timestamps
	limit    int                    // 时间窗口内最大请求数
	window   time.Duration          // 时间窗口
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter 创建频率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}

	// 启动清理协程
	go rl.cleanup()

	return rl
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := prune(rl.requests[key], now.Add(-rl.window))
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// Stop 停止清理协程
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func prune(reqs []time.Time, windowStart time.Time) []time.Time {
	var valid []time.Time
	for _, t := range reqs {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	return valid
}

// cleanup 定期清理过期数据
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			windowStart := time.Now().Add(-rl.window)
			for key, reqs := range rl.requests {
				if valid := prune(reqs, windowStart); len(valid) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}
