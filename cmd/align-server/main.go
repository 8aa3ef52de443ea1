package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrwolf/align-server/internal/alignment"
	"github.com/mrwolf/align-server/internal/api"
	"github.com/mrwolf/align-server/internal/config"
	"github.com/mrwolf/align-server/internal/db"
	"github.com/mrwolf/align-server/internal/inquiry"
	"github.com/mrwolf/align-server/internal/journal"
	"github.com/mrwolf/align-server/internal/llm"
	"github.com/mrwolf/align-server/internal/metrics"
	"github.com/mrwolf/align-server/internal/models"
	"github.com/mrwolf/align-server/internal/scheduler"
)

var rootCmd = &cobra.Command{
	Use:           "align-server",
	Short:         "align-server - turns status updates into tracked progress and follow-up questions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Parse an alignment text and print the result as JSON (reads stdin without an argument)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParse(cmd.InOrStdin(), cmd.OutOrStdout(), args)
	},
}

var (
	snapshotFile string
	nowFlag      string
)

var inquireCmd = &cobra.Command{
	Use:   "inquire",
	Short: "Rank follow-up questions for a snapshot file and print them as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInquire(cmd.OutOrStdout(), snapshotFile, nowFlag, time.Now())
	},
}

func init() {
	inquireCmd.Flags().StringVarP(&snapshotFile, "file", "f", "", "snapshot JSON file")
	inquireCmd.Flags().StringVar(&nowFlag, "now", "", "reference time (RFC3339), defaults to the current time")
	inquireCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(serveCmd, parseCmd, inquireCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)
	logger.Info().Str("environment", cfg.Environment).Str("port", cfg.Port).Int("users", len(cfg.Users)).Msg("starting align-server")

	clock := clockwork.NewRealClock()

	database, err := db.Open(cfg.DBPath, db.WithClock(clock))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error().Err(err).Msg("database close error")
		}
	}()

	j := journal.New(cfg.JournalPath)
	if j == nil {
		logger.Info().Msg("journal disabled")
	} else {
		logger.Info().Str("path", j.BasePath()).Msg("journal enabled")
	}

	llmClient := llm.NewClient(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaModelHeavy)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := llmClient.HealthCheck(ctx); err != nil {
		logger.Warn().Err(err).Msg("ollama health check failed, chat and planning may not work")
	} else {
		logger.Info().Str("url", cfg.OllamaURL).Str("model", cfg.OllamaModel).Str("model_heavy", cfg.OllamaModelHeavy).Msg("ollama connected")
	}
	cancel()

	m := metrics.New()

	router := api.NewRouter(api.Deps{
		Config:  cfg,
		Store:   database,
		Journal: j,
		LLM:     llmClient,
		Metrics: m,
		Clock:   clock,
		Logger:  logger,
	})

	sched, err := scheduler.New(database, llmClient, j, m, scheduler.Config{
		Timezone:        cfg.Location(),
		Users:           cfg.UserIDs(),
		InquiryInterval: cfg.InquiryInterval,
		RetentionDays:   cfg.RetentionDays,
		Clock:           clock,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
		logger.Info().Msg("shutting down gracefully")
	case err := <-serveErr:
		logger.Error().Err(err).Msg("server error")
	}

	// Give ongoing requests 10 seconds to complete
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown error")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func runParse(in io.Reader, out io.Writer, args []string) error {
	var text string
	if len(args) > 0 {
		text = args[0]
	} else {
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	res, err := alignment.Parse(text)
	if err != nil {
		return err
	}
	return writeIndented(out, res)
}

func runInquire(out io.Writer, path, nowStr string, now time.Time) error {
	if nowStr != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(nowStr))
		if err != nil {
			return fmt.Errorf("parsing --now: %w", err)
		}
		now = parsed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	var snap models.InquiryRequest
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := inquiry.Validate(snap); err != nil {
		return err
	}

	return writeIndented(out, models.InquiryResponse{Inquiries: inquiry.Rank(snap, now)})
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
