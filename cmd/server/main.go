package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talent-match/internal/api/handler"
	"talent-match/internal/api/router"
	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/outbox"
	"talent-match/internal/processor"
	"talent-match/internal/storage"
	"talent-match/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时自动查找 config.yaml")
	pflag.Parse()

	// .env 不存在时忽略，环境变量仍可直接注入
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logCloser, err := logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化日志失败")
	}
	defer logCloser.Close()

	glog.SetLogger(hertzadapter.From(logger.Logger))
	glog.SetLevel(hertzLevel(cfg.Logger.Level))
	logger.Info().Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	storageManager, err := storage.NewStorage(ctx, cfg, logger.Component("storage"))
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	logger.Info().
		Bool("vector_index", storageManager.VectorIndex.Enabled()).
		Bool("redis", storageManager.Redis != nil).
		Bool("minio", storageManager.MinIO != nil).
		Bool("rabbitmq", storageManager.RabbitMQ != nil).
		Msg("存储服务初始化完成")

	pipeline, err := newPipeline(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化处理流水线失败")
	}
	proc := processor.New(
		append(pipeline, processor.WithStorage(storageManager, &cfg.RabbitMQ)),
		processor.WithIngestionConfig(cfg.Ingestion),
		processor.WithLogger(logger.Component("processor")),
	)
	logger.Info().Msg("处理器初始化成功")

	var relay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, &cfg.RabbitMQ, logger.Component("outbox"))
		relay.Start(ctx)
	} else {
		logger.Warn().Msg("RabbitMQ 未启用，出站事件保留在发件箱中")
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBody),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s %d %s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, handler.New(proc, logger.Component("api")), cfg.TenantForAPIKey)
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancelShutdown()

	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	if relay != nil {
		relay.Stop()
	}
	cancel()
	if err := storageManager.Close(); err != nil {
		logger.Error().Err(err).Msg("关闭存储连接失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("关闭链路追踪失败")
	}
	logger.Info().Msg("优雅退出完成")
}

func hertzLevel(level string) glog.Level {
	switch level {
	case "debug":
		return glog.LevelDebug
	case "warn":
		return glog.LevelWarn
	case "error":
		return glog.LevelError
	default:
		return glog.LevelInfo
	}
}
