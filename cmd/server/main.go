// Command server runs the message service: webhook ingress, the chat
// session coordinator, and the retrieve/infer/reply worker pool, all in
// one process.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wa-agent/backend/internal/clock"
	"github.com/wa-agent/backend/internal/config"
	"github.com/wa-agent/backend/internal/coordinator"
	"github.com/wa-agent/backend/internal/crypto"
	"github.com/wa-agent/backend/internal/gateway"
	"github.com/wa-agent/backend/internal/handlers"
	"github.com/wa-agent/backend/internal/intervention"
	"github.com/wa-agent/backend/internal/kv/redis"
	"github.com/wa-agent/backend/internal/llm/ollama"
	"github.com/wa-agent/backend/internal/llm/openai"
	"github.com/wa-agent/backend/internal/metrics"
	"github.com/wa-agent/backend/internal/pipeline"
	"github.com/wa-agent/backend/internal/ports"
	"github.com/wa-agent/backend/internal/ratelimit"
	"github.com/wa-agent/backend/internal/repository"
	"github.com/wa-agent/backend/internal/segment"
	"github.com/wa-agent/backend/internal/vector/qdrant"
)

const idleSweepInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	repository.Configure(db, repository.DatabaseConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})

	kv := redis.New(redis.Config{Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := kv.Ping(context.Background()); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	defer kv.Close()

	envelope, err := crypto.New(cfg.Crypto.EncryptionKey)
	if err != nil {
		return fmt.Errorf("build crypto envelope: %w", err)
	}

	sessions := repository.NewSessionRepository(db, envelope)
	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)
	agents := repository.NewAgentRepository(db)
	jobs := repository.NewJobRepository(db)
	audit := repository.NewAuditRepository(db)

	vectors, err := qdrant.NewClient(cfg.Vector.QdrantURL, cfg.Vector.QdrantAPIKey)
	if err != nil {
		return fmt.Errorf("build qdrant client: %w", err)
	}

	var llm interface {
		ports.LLM
		ports.Embeddings
	}
	switch cfg.LLM.Provider {
	case "ollama":
		llm = ollama.NewClient(cfg.LLM.BaseURL)
	default:
		llm = openai.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	}

	limiter := ratelimit.New(kv, 60, cfg.RateLimit.FailOpen)

	control := intervention.New(sessions, conversations, sessions.SessionIDForChat)
	recorder := metrics.NewRecorder(log)

	queue := pipeline.NewQueue(jobs)
	clk := clock.NewReal()

	coord := coordinator.New(
		context.Background(),
		clk,
		conversations,
		messages,
		queue,
		audit,
		control,
		cfg.ChatActor.IdleTTL,
		recorder.OnFlushError,
	)

	gw := gateway.NewRateLimited(gateway.New(sessions), limiter)

	retriever := pipeline.NewRetriever(agents, llm, vectors, agents, queue)
	inferrer := pipeline.NewInferrer(agents, messages, llm, messages, messages, cfg.Inference.HistoryWindow, queue)
	replier := pipeline.NewReplier(gw, conversations, messages, clk, segment.Default())

	pool := pipeline.NewPool(jobs, control, retriever, inferrer, replier, clk, 4, 500*time.Millisecond, recorder.OnJobError)

	webhookHandler, err := handlers.NewWebhookHandler(sessions, coord, kv, log)
	if err != nil {
		return fmt.Errorf("build webhook handler: %w", err)
	}

	router := newRouter(webhookHandler)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolErrCh := make(chan error, 1)
	go func() { poolErrCh <- pool.Run(ctx) }()

	go runIdleSweep(ctx, coord)

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr))
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-poolErrCh:
		if err != nil {
			log.Error("worker pool stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	return nil
}

func newRouter(wh *handlers.WebhookHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/webhooks/gateway/:sessionId", wh.HandleWebhook)
	return r
}

func runIdleSweep(ctx context.Context, coord *coordinator.Coordinator) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			coord.IdleSweep()
		}
	}
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
