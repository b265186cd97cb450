// Hissa 代课推荐服务
// 主程序入口

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hissa/hissa/internal/cache"
	"github.com/hissa/hissa/internal/config"
	"github.com/hissa/hissa/internal/database"
	"github.com/hissa/hissa/internal/handler"
	"github.com/hissa/hissa/internal/metrics"
	"github.com/hissa/hissa/internal/middleware"
	"github.com/hissa/hissa/internal/repository"
	"github.com/hissa/hissa/internal/security"
	"github.com/hissa/hissa/internal/service"
	"github.com/hissa/hissa/pkg/logger"
	"github.com/hissa/hissa/pkg/substitute"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
	})

	fmt.Printf("Hissa 代课推荐服务 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	if err := run(cfg); err != nil {
		logger.WithError(err).Msg("服务异常退出")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	strategy, err := substitute.StrategyByName(cfg.Ranking.Strategy)
	if err != nil {
		return err
	}
	ranker := substitute.NewRanker(strategy, substitute.Options{
		ExcludeAdjacent:    cfg.Ranking.ExcludeAdjacent,
		RecommendMaxCount:  cfg.Ranking.RecommendMaxCount,
		LightLoadThreshold: cfg.Ranking.LightLoadThreshold,
		Locale:             cfg.Ranking.Locale,
	})

	reg := metrics.GetRegistry()
	svc := service.NewSubstituteService(service.Deps{
		Schedules: st.schedules,
		Absences:  st.absences,
		Cache:     cache.NewSnapshotCache(cfg.Cache.SnapshotTTL, cfg.Cache.CleanupInterval),
		Ranker:    ranker,
		Metrics:   reg,
	})

	var tokens *security.TokenManager
	if cfg.Auth.Enabled {
		tokens = security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else if cfg.IsProduction() {
		logger.Warn().Msg("生产环境未启用认证，所有调用方按管理员处理")
	} else {
		logger.Info().Msg("认证已关闭，所有调用方按管理员处理")
	}

	limiter := security.NewRateLimiter(cfg.API.RateLimit, time.Second)
	defer limiter.Stop()

	opts := handler.Options{
		Service:       svc,
		Authenticator: middleware.NewAuthenticator(tokens, cfg.Auth.Enabled),
		RateLimiter:   limiter,
		Health:        st.health,
		Recorder:      reg.RecordRequest,
		CORSOrigins:   cfg.API.CORSOrigins,
		Build:         handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = reg.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}
	h, err := handler.NewHandler(opts)
	if err != nil {
		return fmt.Errorf("初始化路由失败: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      http.TimeoutHandler(h, cfg.API.Timeout, `{"success":false,"error":{"code":"TIMEOUT","message":"请求超时"}}`),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.API.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Str("store", cfg.Database.Driver).
			Str("strategy", strategy.Name()).
			Bool("auth", cfg.Auth.Enabled).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("服务器启动失败: %w", err)
	case <-quit:
	}

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	logger.Info().Msg("服务器已关闭")
	return nil
}

type store struct {
	schedules repository.ScheduleRepository
	absences  repository.AbsenceRepository
	health    func(ctx context.Context) error
	close     func()
}

// openStore 按配置选择内存或 PostgreSQL 存储
func openStore(cfg *config.Config) (*store, error) {
	log := logger.WithField("driver", cfg.Database.Driver)
	if cfg.Database.InMemory() {
		log.Warn().Msg("使用内存存储，重启后数据丢失")
		return &store{
			schedules: repository.NewMemoryScheduleRepository(),
			absences:  repository.NewMemoryAbsenceRepository(),
			close:     func() {},
		}, nil
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Info().Msg("存储就绪")

	return &store{
		schedules: repository.NewScheduleRepository(db),
		absences:  repository.NewAbsenceRepository(db),
		health:    db.Health,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("关闭数据库失败")
			}
		},
	}, nil
}
