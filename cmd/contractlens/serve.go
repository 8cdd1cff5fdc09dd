package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/contractlens/internal/api"
	"github.com/dgallion1/contractlens/internal/archive"
	"github.com/dgallion1/contractlens/internal/delivery"
	"github.com/dgallion1/contractlens/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and messaging webhook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(os.Stdout)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Initialize clients.
		llm, err := newReasoningClient(cfg)
		if err != nil {
			return err
		}
		defer llm.Close()

		p, err := newPipeline(cfg, llm, log)
		if err != nil {
			return err
		}

		var (
			recorder pipeline.RunRecorder
			runs     api.RunArchive
		)
		if cfg.ArchivePath != "" {
			store, err := archive.Open(cfg.ArchivePath)
			if err != nil {
				return err
			}
			defer store.Close()
			recorder, runs = store, store
		}

		replier := delivery.NewWebhookClient(cfg.WebhookVerifyToken, 30*time.Second)
		defer replier.Close()

		// Initialize pipeline.
		orch := pipeline.NewOrchestrator(cfg, p, recorder, log)
		orch.Start(ctx)

		// Initialize HTTP server.
		srv := api.NewServer(orch, llm, runs, replier, log, cfg)

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.StageTimeout*time.Duration(p.Graph().Len()+1) + 30*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown.
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			log.Info("shutting down...")

			// Stop accepting uploads before the job queue closes.
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)

			orch.Stop()
		}()

		log.Info("starting contractlens",
			"port", cfg.Port,
			"provider", llm.Provider(),
			"model", llm.Model(),
			"stages", p.Graph().Order(),
			"archive", cfg.ArchivePath,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}
