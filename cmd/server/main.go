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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	analysisclient "github.com/dkeye/CallGuard/internal/adapters/analysis"
	router "github.com/dkeye/CallGuard/internal/adapters/http"
	"github.com/dkeye/CallGuard/internal/adapters/pgstore"
	"github.com/dkeye/CallGuard/internal/adapters/rtc"
	wsrelay "github.com/dkeye/CallGuard/internal/adapters/signal"
	"github.com/dkeye/CallGuard/internal/app"
	"github.com/dkeye/CallGuard/internal/app/analysis"
	"github.com/dkeye/CallGuard/internal/app/media"
	"github.com/dkeye/CallGuard/internal/app/orch"
	"github.com/dkeye/CallGuard/internal/app/worker"
	"github.com/dkeye/CallGuard/internal/config"
	"github.com/dkeye/CallGuard/internal/core"
	"github.com/dkeye/CallGuard/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	serverID := domain.UserID(cfg.ServerID)

	factory, err := rtc.NewFactory(cfg.WebRTC)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}

	signalJobs := worker.NewPool("signaling", cfg.Signaling.Workers, cfg.Signaling.QueueSize)
	analysisJobs := worker.NewPool("analysis", cfg.Analysis.Workers, cfg.Analysis.QueueSize)

	transport, ws, closeTransport, err := openTransport(ctx, cfg, serverID)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport.Kind).Msg("transport")
	}
	defer closeTransport()

	pipeline := &analysis.Pipeline{
		Analyzer:     analysisclient.NewClient(cfg.Analysis.URL, cfg.Analysis.Timeout),
		Alerts:       transport,
		Jobs:         analysisJobs,
		NewDecoder:   analysis.NewOpusDecoder,
		SampleRate:   cfg.Analysis.SampleRate,
		Timeout:      cfg.Analysis.Timeout,
		AlertTimeout: cfg.Analysis.AlertTimeout,
	}

	o := orch.New(app.Deps{
		ServerID:     serverID,
		NewMedia:     factory.NewConnection,
		Sender:       transport,
		Signals:      signalJobs,
		Tap:          media.TapConfig{Interval: cfg.Analysis.FlushInterval},
		OnWindow:     pipeline.Schedule,
		OfferTimeout: cfg.WebRTC.OfferTimeout,
		WriteTimeout: cfg.Transport.WriteTimeout,
	}, orch.Options{
		ReapInterval:       cfg.Reaper.Interval,
		NegotiationTimeout: cfg.Reaper.NegotiationTimeout,
	})

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := o.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("orchestrator stopped")
		}
	})
	wg.Go(func() {
		if err := transport.Run(ctx, o); err != nil {
			log.Error().Err(err).Str("transport", cfg.Transport.Kind).Msg("transport stopped")
		}
	})

	r := router.SetupRouter(ctx, cfg, o, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("server_id", cfg.ServerID).Msg("CallGuard relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	wg.Wait()
	signalJobs.Stop()
	analysisJobs.Stop()
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openTransport builds the configured relay transport. ws is nil unless clients connect directly.
func openTransport(ctx context.Context, cfg *config.Config, serverID domain.UserID) (core.Transport, router.SignalHandler, func(), error) {
	switch cfg.Transport.Kind {
	case config.TransportPostgres:
		store, err := pgstore.Open(ctx, cfg.Transport.DatabaseURL, serverID)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		go store.RunJanitor(ctx, pgstore.JanitorConfig{
			Interval:           cfg.Transport.JanitorInterval,
			SignalingRetention: cfg.Transport.SignalingRetention,
			CallRetention:      cfg.Transport.CallRetention,
		})
		return store, nil, store.Close, nil
	default:
		hub := wsrelay.NewHub(wsrelay.HubConfig{
			ServerID:   serverID,
			ReadLimit:  cfg.Transport.ReadLimit,
			PingPeriod: cfg.Transport.PingPeriod,
			WriteWait:  cfg.Transport.WriteTimeout,
			RateLimit:  cfg.Transport.RateLimit,
			RateWindow: cfg.Transport.RateWindow,
			Policy:     wsrelay.KickPolicy{},
			// the last window is flushed on ended, then analyzed and published
			EndedRetention: cfg.Analysis.FlushInterval + cfg.Analysis.Timeout + cfg.Analysis.AlertTimeout,
		})
		return hub, hub, func() {}, nil
	}
}
