// Package handler 提供API处理器
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/rs/cors"

	"github.com/hissa/hissa/internal/middleware"
	"github.com/hissa/hissa/internal/security"
	"github.com/hissa/hissa/internal/service"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/logger"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Options 路由装配参数
type Options struct {
	Service       *service.SubstituteService
	Authenticator *middleware.Authenticator
	RateLimiter   *security.RateLimiter
	Health        func(ctx context.Context) error // 存储健康检查，可为 nil
	Recorder      middleware.RequestRecorder
	Metrics       http.Handler // 为 nil 时不暴露指标
	MetricsPath   string
	CORSOrigins   []string
	Build         BuildInfo
}

// Handler HTTP 处理器
type Handler struct {
	svc        *service.SubstituteService
	validate   *validator.Validate
	translator ut.Translator
	opts       Options

	Mux *chi.Mux
}

// NewHandler 创建处理器并注册路由
func NewHandler(opts Options) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zhLocale := zh.New()
	uni := ut.New(zhLocale, zhLocale)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	// 错误字段名与请求体保持一致
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if opts.Authenticator == nil {
		opts.Authenticator = middleware.NewAuthenticator(nil, false)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	h := &Handler{
		svc:        opts.Service,
		validate:   validate,
		translator: trans,
		opts:       opts,
		Mux:        chi.NewRouter(),
	}
	h.registerRoutes()
	return h, nil
}

// ServeHTTP 实现 http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	origins := h.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h.Mux.Use(middleware.RequestID)
	h.Mux.Use(middleware.Recovery)
	h.Mux.Use(middleware.SecurityHeaders)
	h.Mux.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
	}).Handler)
	h.Mux.Use(middleware.Logging(h.opts.Recorder))

	h.Mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, apperrors.New(apperrors.CodeNotFound, "接口不存在"))
	})
	h.Mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		err := apperrors.New(apperrors.CodeInvalidInput, "不支持的请求方法")
		err.HTTPStatus = http.StatusMethodNotAllowed
		h.fail(w, r, err)
	})

	// 系统端点
	h.Mux.Get("/health", h.Health)
	h.Mux.Get("/version", h.Version)
	if h.opts.Metrics != nil {
		h.Mux.Handle(h.opts.MetricsPath, h.opts.Metrics)
	}

	writers := middleware.RequireRole(security.RoleAdmin, security.RoleDirector)

	h.Mux.Route("/api/v1", func(r chi.Router) {
		r.Use(h.opts.Authenticator.Authenticate)
		r.Use(middleware.RateLimit(h.opts.RateLimiter))

		r.Get("/availability/busy", h.BusyTeachers)

		r.Route("/substitutes", func(r chi.Router) {
			r.Post("/rank", h.RankSubstitutes)
			r.Post("/smart-assign", h.SmartAssign)
		})

		r.Get("/conflicts", h.DetectConflicts)

		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Get("/{id}/periods", h.AbsentPeriods)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/fairness", h.Fairness)
			r.Get("/workload", h.Workload)
			r.Get("/overview", h.Overview)
		})

		r.Route("/absences", func(r chi.Router) {
			r.Get("/", h.ListAbsences)
			r.With(writers).Post("/", h.RecordIncident)
			r.With(writers).Delete("/orphans", h.PurgeOrphans)
			r.With(writers).Patch("/{id}/substitute", h.UpdateSubstitute)
			r.With(writers).Delete("/{id}", h.DeleteAbsence)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.With(writers).Post("/", h.SaveSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.With(writers).Post("/{id}/approve", h.ApproveSchedule)
			r.With(writers).Post("/{id}/unapprove", h.UnapproveSchedule)
		})
	})
}

// Health 健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Health(ctx); err != nil {
			logger.WithContext(r.Context()).Warn().Err(err).Msg("存储健康检查失败")
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	h.writeJSON(w, r, code, map[string]interface{}{
		"status":  status,
		"service": "hissa",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// Version 版本信息
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.opts.Build)
}

// Response 统一响应格式
type Response struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Error   *apperrors.AppError `json:"error,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Msg("响应编码失败")
	}
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, data interface{}) {
	h.writeJSON(w, r, http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handler) created(w http.ResponseWriter, r *http.Request, data interface{}) {
	h.writeJSON(w, r, http.StatusCreated, Response{Success: true, Data: data})
}

// fail 输出错误响应，未分类错误记录日志后按内部错误返回
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		err = h.translate(validationErrs)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logger.WithContext(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("服务器内部错误")
		appErr = apperrors.Wrap(err, apperrors.CodeInternal, "服务器内部错误")
	}
	h.writeJSON(w, r, appErr.HTTPStatus, Response{Success: false, Error: appErr})
}

func (h *Handler) translate(errs validator.ValidationErrors) *apperrors.AppError {
	ve := &apperrors.ValidationErrors{}
	for _, fe := range errs {
		ve.Add(fe.Field(), fe.Translate(h.translator))
	}
	return ve.ToAppError()
}

// decode 读取并校验请求体
func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.New(apperrors.CodeInvalidInput, "请求体格式错误").WithDetails(err.Error())
	}
	return h.validate.Struct(v)
}

// scope 管理员可用 school_id 参数限定学校，其他角色固定为所属学校
func (h *Handler) scope(r *http.Request) service.Scope {
	p, ok := security.FromContext(r.Context())
	if !ok {
		// 未经认证链路时不匹配任何学校
		return service.Scope{SchoolID: "-"}
	}
	if p.IsAdmin() {
		return service.Scope{SchoolID: r.URL.Query().Get("school_id")}
	}
	return service.Scope{SchoolID: p.SchoolID}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(key, "必须是整数")
	}
	return v, nil
}
