package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docsearch/internal/app"
	"docsearch/internal/config"
	"docsearch/internal/events"
	"docsearch/internal/ingest"
	"docsearch/internal/logger"
	"docsearch/internal/middleware"
	"docsearch/internal/retrieval"
	"docsearch/internal/worker"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "docsearch",
		Short:         "Ingest PDF documents into a vector store and search them semantically.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := loadConfig()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			cfg = loaded
			slog.SetDefault(logger.New(os.Stdout, cfg.SlogLevel()))
			return nil
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.ServerPort = port
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
	serve.Flags().Int("port", 0, "override SERVER_PORT")

	ingestCmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Load, chunk, embed and upsert a single PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if async, _ := cmd.Flags().GetBool("async"); async {
				return queueIngest(cmd.Context(), cfg, args[0], out)
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				res, err := a.Pipeline.Ingest(ctx, args[0], ingest.Source{Filename: filepath.Base(args[0])})
				if err != nil {
					return err
				}
				return printJSON(out, res)
			})
		},
	}

	ingestCmd.Flags().Bool("async", false, "queue the file for the worker instead of ingesting in-process")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued ingest requests from NSQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.NSQDHost == "" {
				return fmt.Errorf("%w: NSQD_HOST", config.ErrMissingRequired)
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return worker.Run(ctx, worker.ConsumerConfig{
					NSQDAddr:    cfg.NSQDHost,
					Topic:       config.TopicDocumentIngest,
					Channel:     config.ChannelIngestWorker,
					MaxInFlight: cfg.WorkerMaxInFlight,
					MaxAttempts: cfg.WorkerMaxAttempts,
				}, worker.NewIngestConsumer(a.Pipeline, time.Duration(cfg.WorkerTimeoutSeconds)*time.Second))
			})
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Return the chunks most similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			documentID, _ := cmd.Flags().GetString("document")
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				results, err := a.Search.Search(ctx, args[0], retrieval.Options{Limit: limit, DocumentID: documentID})
				if err != nil {
					return err
				}
				if results == nil {
					results = []retrieval.Result{}
				}
				return printJSON(out, results)
			})
		},
	}
	searchCmd.Flags().Int("limit", 0, "number of results (default SEARCH_TOP_K)")
	searchCmd.Flags().String("document", "", "restrict results to one document id")

	root.AddCommand(serve, ingestCmd, workerCmd, searchCmd)
	return root
}

// withApp bootstraps clients, builds the app and hands it to fn under a
// signal-aware context. Everything is released when fn returns.
func withApp(parent context.Context, cfg *config.Config, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = middleware.WithCorrelationID(ctx, uuid.New().String())

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "bootstrap failed", "error", err)
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			slog.Warn("failed to close dependencies", "error", err)
		}
	}()

	a, err := app.New(cfg, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		slog.ErrorContext(ctx, "command failed", "error", err)
		return err
	}
	return nil
}

// queueIngest publishes an ingest request for the worker. The path is made
// absolute since the worker resolves it on its own.
func queueIngest(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	if cfg.NSQDHost == "" {
		return fmt.Errorf("%w: NSQD_HOST", config.ErrMissingRequired)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	producer, err := events.NewProducer(cfg.NSQDHost)
	if err != nil {
		return fmt.Errorf("nsq producer error: %w", err)
	}
	defer producer.Stop()

	req := events.IngestRequest{
		DocumentID: uuid.New().String(),
		Path:       abs,
		Filename:   filepath.Base(abs),
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := events.RequestIngest(middleware.WithCorrelationID(ctx, uuid.New().String()), producer, req); err != nil {
		return err
	}
	return printJSON(out, map[string]string{"document_id": req.DocumentID, "status": "queued"})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
