package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/config"
	"github.com/oceanmonitor/dashboard/internal/handler"
	"github.com/oceanmonitor/dashboard/internal/service/ai"
	"github.com/oceanmonitor/dashboard/internal/service/chat"
	"github.com/oceanmonitor/dashboard/internal/service/identify"
	"github.com/oceanmonitor/dashboard/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	upstream := client.New(cfg.Upstream.BaseURL, client.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}))
	log.Printf("Ocean Monitor upstream: %s", upstream.BaseURL())

	// Initialize AI service
	var completer chat.Completer
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			completer = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，智能问答将返回错误提示")
	}

	limiter := identify.NewLimiter(cfg.Identify.RatePerMinute)
	sessions := session.NewService(upstream, completer, limiter)
	go sessions.RunSweeper(ctx, cfg.Server.SessionIdleTimeout)

	router := handler.NewRouter(cfg.Server.AllowedOrigin, sessions, upstream)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Ocean Monitor dashboard listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
