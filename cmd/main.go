package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"companion-agent/handler"
	"companion-agent/internal/integrations/deepseek"
	"companion-agent/internal/integrations/openai"
	"companion-agent/internal/integrations/paramstore"
	"companion-agent/internal/llm"
	"companion-agent/internal/logging"
	"companion-agent/internal/repository"
	"companion-agent/internal/usecase"
)

func main() {
	_ = gotenv.Load()
	ctx := context.Background()

	logger, err := logging.New()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv(logger, "STATE_TABLE")
	paramPrefix := mustEnv(logger, "PARAM_PREFIX")
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	maxContextTurns := envInt("MAX_CONTEXT_TURNS", 40)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 2000)
	primaryModel := envOr("PRIMARY_MODEL", "gpt-4o-mini")
	fallbackModel := envOr("FALLBACK_MODEL", "deepseek-chat")
	creds := llm.Credentials{
		PrimaryKey:   os.Getenv("OPENAI_API_KEY"),
		SecondaryKey: os.Getenv("DEEPSEEK_API_KEY"),
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("failed to load AWS config", zap.Error(err))
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Fatal("failed to create SSM client", zap.Error(err))
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		logger.Fatal("failed to create state client", zap.Error(err))
	}

	primaryClient, err := openai.NewClient(creds.PrimaryKey, primaryModel)
	if err != nil {
		logger.Fatal("failed to create primary chat client", zap.Error(err))
	}
	fallbackClient, err := deepseek.NewClient(creds.SecondaryKey, fallbackModel)
	if err != nil {
		logger.Fatal("failed to create fallback chat client", zap.Error(err))
	}

	orch, err := llm.NewOrchestrator(primaryClient, fallbackClient, creds, logger)
	if err != nil {
		logger.Fatal("failed to create orchestrator", zap.Error(err))
	}

	chatService, err := usecase.NewChatService(ssmClient, orch, stateClient, paramPrefix, maxContextTurns, maxMessageLen)
	if err != nil {
		logger.Fatal("failed to create chat service", zap.Error(err))
	}

	h, err := handler.New(chatService, logger)
	if err != nil {
		logger.Fatal("failed to create handler", zap.Error(err))
	}

	// ---- Periodic availability refresh ----
	sched := cron.New()
	if _, err := sched.AddFunc("@every 5m", func() {
		st := orch.Refresh()
		logger.Debug("provider availability refreshed",
			zap.String("active", string(st.ActiveProvider)),
			zap.Bool("primary", st.PrimaryAvailable),
			zap.Bool("secondary", st.SecondaryAvailable),
		)
	}); err != nil {
		logger.Fatal("failed to schedule availability refresh", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// ---- HTTP server ----
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("1M"))
	h.Register(e)

	logger.Info("starting server", zap.String("addr", listenAddr))
	if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func mustEnv(logger *zap.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Fatal("required environment variable is not set", zap.String("key", key))
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
