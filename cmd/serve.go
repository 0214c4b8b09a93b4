package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/api"
	"github.com/sells-group/lead-engine/internal/audio"
	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/intake"
	"github.com/sells-group/lead-engine/internal/pipeline"
	"github.com/sells-group/lead-engine/internal/stats"
	"github.com/sells-group/lead-engine/internal/transcribe"
	anthropicpkg "github.com/sells-group/lead-engine/pkg/anthropic"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead management HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the API services over env.
func buildRouter(env *appEnv, c *config.Config) http.Handler {
	var llm anthropicpkg.Client
	if c.Anthropic.Key != "" {
		llm = anthropicpkg.NewClient(c.Anthropic.Key)
	} else {
		zap.L().Warn("anthropic.key not set, intent extraction disabled")
	}
	if c.Transcribe.Key == "" {
		zap.L().Warn("transcribe.key not set, recordings will not be transcribed")
	}

	enricher := intake.NewEnricher(env.Store, env.Scorer)
	processor := audio.NewProcessor(
		env.Store,
		transcribe.NewWhisper(c.Transcribe),
		extract.NewLLM(llm, c.Anthropic),
		env.Scorer,
		env.Merger,
		audio.NewRecordings(c.Audio.UploadDir),
	)

	return api.NewRouter(api.Deps{
		Store:      env.Store,
		Reconciler: intake.NewReconciler(env.Store, enricher, env.Pool),
		Audio:      processor,
		Stats:      stats.New(env.Store),
		Classifier: pipeline.NewClassifier(env.Merger),
		Pool:       env.Pool,
		Display:    api.NewDisplay(c.Display.TimeZone),
		Server:     c.Server,
		Upload:     c.Audio,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
