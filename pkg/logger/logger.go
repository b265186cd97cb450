// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// ContextKey 上下文键
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	SchoolIDKey  ContextKey = "school_id"
)

// Level 日志级别
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // json/console
	Output     string `json:"output"` // stdout/stderr/file
	FilePath   string `json:"file_path,omitempty"`
	TimeFormat string `json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			output = os.Stdout
			if cfg.FilePath != "" {
				if f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
					output = f
				}
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			timeFormat := cfg.TimeFormat
			if timeFormat == "" {
				timeFormat = time.RFC3339
			}
			output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	c := Get().With()
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		c = c.Str("request_id", reqID)
	}
	if schoolID, ok := ctx.Value(SchoolIDKey).(string); ok && schoolID != "" {
		c = c.Str("school_id", schoolID)
	}
	l := c.Logger()
	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// WithError 添加错误信息
func WithError(err error) *zerolog.Event {
	return Get().Error().Err(err)
}

// WithField 添加字段
func WithField(key string, value interface{}) *zerolog.Logger {
	l := Get().With().Interface(key, value).Logger()
	return &l
}

// EngineLogger 代课推荐引擎专用日志器
type EngineLogger struct {
	base *zerolog.Logger
}

// NewEngineLogger 创建代课推荐引擎日志器
func NewEngineLogger() *EngineLogger {
	l := Get().With().Str("component", "substitute").Logger()
	return &EngineLogger{base: &l}
}

// RankStart 记录排序开始
func (l *EngineLogger) RankStart(teacherID, day string, from, to int, strategy string) {
	l.base.Debug().
		Str("teacher_id", teacherID).
		Str("day", day).
		Int("from", from).
		Int("to", to).
		Str("strategy", strategy).
		Msg("开始计算代课候选人")
}

// RankComplete 记录排序完成
func (l *EngineLogger) RankComplete(teacherID string, duration time.Duration, candidates, busy int) {
	l.base.Info().
		Str("teacher_id", teacherID).
		Dur("duration", duration).
		Int("candidates", candidates).
		Int("busy", busy).
		Msg("代课候选人计算完成")
}

// TeacherNotFound 记录缺勤教师无法解析
func (l *EngineLogger) TeacherNotFound(teacherID string) {
	l.base.Warn().
		Str("teacher_id", teacherID).
		Msg("缺勤教师不存在")
}

// NoApprovedSchedule 记录无已批准课表
func (l *EngineLogger) NoApprovedSchedule() {
	l.base.Warn().Msg("没有已批准的课表，所有查询返回空结果")
}
