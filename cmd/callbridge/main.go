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

	"github.com/ent0n29/callbridge/internal/ailink"
	"github.com/ent0n29/callbridge/internal/calllog"
	"github.com/ent0n29/callbridge/internal/config"
	"github.com/ent0n29/callbridge/internal/gateway"
	"github.com/ent0n29/callbridge/internal/httpapi"
	"github.com/ent0n29/callbridge/internal/lifecycle"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/protocol"
	"github.com/ent0n29/callbridge/internal/session"
)

// linkOpener adapts the concrete link manager to the gateway's interface.
type linkOpener struct {
	m *ailink.Manager
}

func (o linkOpener) Open(ctx context.Context, call *session.Call) (gateway.AILink, error) {
	l, err := o.m.Open(ctx, call)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func main() {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.GeminiAPIKey == "" {
		log.Printf("warning: GEMINI_API_KEY is not set, live connections will fail")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := calllog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("call log store init failed: %v", err)
	}
	defer store.Close()

	registry := session.NewRegistry(cfg.MaxCallDuration)
	control := lifecycle.NewController(registry, store, metrics)

	links := ailink.NewManager(ailink.Config{
		APIKey:    cfg.GeminiAPIKey,
		WSBaseURL: cfg.GeminiWSBaseURL,
		Setup: protocol.SetupConfig{
			Model:             cfg.GeminiModel,
			VoiceName:         cfg.GeminiVoice,
			LanguageCode:      cfg.GeminiLanguageCode,
			SystemInstruction: cfg.SystemInstruction,
		},
		Greeting:      cfg.GreetingInstruction,
		AudioMIMEType: cfg.InboundAudioMIMEType,
		SetupAckGrace: cfg.SetupAckGrace,
		DialAttempts:  cfg.DialAttempts,
		PendingMax:    cfg.PendingAudioMax,
	}, metrics)
	links.SetClosedHook(func(call *session.Call, reason string) {
		control.Teardown(call, reason)
	})

	registry.SetStaleHook(func(call *session.Call) {
		metrics.CallEvents.WithLabelValues("expired").Inc()
		log.Printf("call %s exceeded max duration, closing", call.CallSID)
		control.Teardown(call, "max_duration")
	})

	gw := gateway.New(linkOpener{links}, control, registry, store, metrics, cfg.GreetingDelay, cfg.MalformedFrameLimit)

	api := httpapi.New(cfg, registry, gw, store, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("bridge listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	control.Drain(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
