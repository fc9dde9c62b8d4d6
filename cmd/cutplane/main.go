package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonforge/cutplane/config"
	"github.com/halcyonforge/cutplane/pkg/api"
	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/pkg/editor"
	"github.com/halcyonforge/cutplane/util/log"
)

func main() {
	cfg := config.GetConfig()

	client := collab.NewClient(collab.ClientOptions{
		CropBaseURL:       cfg.CropServiceURL,
		SignBaseURL:       cfg.SignerURL,
		DetectBaseURL:     cfg.DetectorURL,
		Token:             config.GetCollaboratorToken(),
		RequestTimeout:    cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	gallery := editor.NewSynchronizer(client, editor.NewSignedURLCache(), cfg.SignedURLTTL, cfg.RequestTimeout)
	pipeline := editor.NewPipeline(client, client, gallery)

	server := api.NewServer(api.Options{
		Pipeline:              pipeline,
		Detector:              client,
		DefaultContainerWidth: cfg.ContainerWidth,
		DefaultMaxHeight:      cfg.MaxDisplayHeight,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Cutplane listening on %s", cfg.ListenAddr)
		errCh <- server.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
