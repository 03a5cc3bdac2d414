package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"mistral-pdf-convert/internal/config"
	"mistral-pdf-convert/internal/export"
	"mistral-pdf-convert/internal/models"
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
		Name:      "convert",
		Usage:     "Run one PDF through the OCR backend and save the rendered page and markdown",
		ArgsUsage: "<file.pdf>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-key",
				EnvVars: []string{"MISTRAL_API_KEY"},
				Aliases: []string{"k"},
				Value:   cfg.DefaultAPIKey,
				Usage:   "Mistral AI API key (defaults to MISTRAL_API_KEY)",
			},
			&cli.BoolFlag{
				Name:    "include-images",
				Aliases: []string{"i"},
				Usage:   "Ask the backend to return extracted images",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "result.html",
				Usage:   "Where to write the rendered page",
			},
			&cli.StringFlag{
				Name:    "export-dir",
				EnvVars: []string{"EXPORT_DIR"},
				Value:   cfg.ExportDir,
				Usage:   "Directory the markdown export is saved to",
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
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one PDF file argument", 2)
			}
			return convert(ctx, c, c.Args().First())
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func convert(ctx context.Context, c *cli.Context, path string) error {
	logger := config.NewLogger(c.String("log-level"))
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	file := &models.FileHandle{
		Name:      filepath.Base(path),
		MediaType: mime.TypeByExtension(filepath.Ext(path)),
		Data:      data,
	}

	pdfService := services.NewPDFService()
	if pages, err := pdfService.PageCount(data); err == nil {
		fmt.Printf("%s %s (%d pages)\n", yellow("Processing"), file.Name, pages)
	} else {
		fmt.Printf("%s %s\n", yellow("Processing"), file.Name)
	}

	outPath := c.String("out")
	exportDir := c.String("export-dir")
	mdName := export.MarkdownFilename(file.Name)

	surface, err := view.NewSurfaceFromBytes(web.Index())
	if err != nil {
		return fmt.Errorf("load page template: %w", err)
	}
	client := ocr.NewClient(ocr.Config{
		Endpoint:       c.String("endpoint"),
		TimeoutSeconds: c.Int("timeout"),
	}, logger)
	renderer := render.NewRenderer(nil, render.Options{ExportURL: exportLink(outPath, exportDir, mdName)}, logger)
	controller := services.NewSubmissionController(client, renderer, surface, pdfService, logger)

	result, err := controller.Submit(ctx, models.SubmissionInput{
		APIKey:        c.String("api-key"),
		File:          file,
		IncludeImages: c.Bool("include-images"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, red(surface.ErrorMessage()))
		return cli.Exit("", 1)
	}

	page, err := surface.HTML()
	if err != nil {
		return fmt.Errorf("serialize page: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(page), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("%s %s (%d pages) -> %s\n", green("Converted"), result.FileName, len(result.Pages), outPath)

	text, ok := result.ExportText()
	if !ok {
		fmt.Println(yellow("No text to export"))
		return nil
	}
	blobs := export.NewRegistry()
	trigger := export.NewFileTrigger(exportDir, blobs)
	exporter := export.NewExporter(blobs, trigger, logger)
	if err := exporter.ExportText(text, mdName); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", green("Markdown saved to"), trigger.Saved)
	return nil
}

// exportLink is the download href written into the saved page: the markdown
// file's path relative to the page.
func exportLink(outPath, exportDir, mdName string) string {
	target := filepath.Join(exportDir, mdName)
	rel, err := filepath.Rel(filepath.Dir(outPath), target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
