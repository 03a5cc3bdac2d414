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

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"mistral-pdf-convert/internal/api"
	"mistral-pdf-convert/internal/config"
	"mistral-pdf-convert/internal/export"
	"mistral-pdf-convert/internal/ocr"
	"mistral-pdf-convert/internal/render"
	"mistral-pdf-convert/internal/services"
	"mistral-pdf-convert/internal/view"
	"mistral-pdf-convert/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	app := &cli.App{
		Name:  "mistral-pdf-convert",
		Usage: "Web front end that converts PDFs to markdown through the Mistral OCR backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				EnvVars: []string{"HOST"},
				Value:   cfg.Host,
				Usage:   "Interface to listen on (0.0.0.0 for all)",
			},
			&cli.StringFlag{
				Name:    "port",
				EnvVars: []string{"PORT"},
				Value:   cfg.Port,
				Usage:   "Port to listen on",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				EnvVars: []string{"OCR_ENDPOINT"},
				Value:   cfg.OCREndpoint,
				Usage:   "URL of the OCR backend route",
			},
			&cli.IntFlag{
				Name:    "timeout",
				EnvVars: []string{"OCR_TIMEOUT_SECONDS"},
				Value:   cfg.OCRTimeout,
				Usage:   "OCR request timeout in seconds",
			},
			&cli.IntFlag{
				Name:    "max-upload-mb",
				EnvVars: []string{"MAX_UPLOAD_MB"},
				Value:   cfg.MaxUploadMB,
				Usage:   "Largest accepted upload in megabytes",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   cfg.LogLevel,
				Usage:   "Log level (debug, info, warn, error)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg.Host = c.String("host")
			cfg.Port = c.String("port")
			cfg.OCREndpoint = c.String("endpoint")
			cfg.OCRTimeout = c.Int("timeout")
			cfg.MaxUploadMB = c.Int("max-upload-mb")
			cfg.LogLevel = c.String("log-level")
			return serve(ctx, cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.LogLevel)

	surface, err := view.NewSurfaceFromBytes(web.Index())
	if err != nil {
		return fmt.Errorf("load page template: %w", err)
	}

	client := ocr.NewClient(ocr.Config{
		Endpoint:       cfg.OCREndpoint,
		TimeoutSeconds: cfg.OCRTimeout,
	}, logger)
	renderer := render.NewRenderer(nil, render.Options{ExportURL: render.DefaultExportURL}, logger)
	controller := services.NewSubmissionController(client, renderer, surface, services.NewPDFService(), logger)

	server := api.NewServer(controller, export.NewRegistry(), cfg.MaxUploadBytes(), logger)

	// WriteTimeout covers the whole OCR round trip of a blocking submit.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      time.Duration(cfg.OCRTimeout)*time.Second + time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     srv.Addr,
			"endpoint": client.Endpoint(),
		}).Info("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
