package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/expense-capture/internal/capture"
	"github.com/zombor/expense-capture/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("expense-capture")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "expense-capture.db", "Database file path")
		storageType    = fs.StringLong("storage", "local", "Storage backend: 'local' or 's3'")
		storagePath    = fs.StringLong("storage-path", "./vouchers", "Local storage directory path")
		publicURL      = fs.StringLong("public-url", "", "Base URL of stored images (default http://localhost:{port}/files for local storage)")
		s3Bucket       = fs.StringLong("s3-bucket", "", "S3 bucket for stored images")
		s3Region       = fs.StringLong("s3-region", "us-east-1", "S3 bucket region")
		extractorType  = fs.StringLong("extractor", "http", "Field extractor: 'http', 'gemini' or 'none'")
		extractorURL   = fs.StringLong("extractor-url", "", "Field extraction service URL")
		extractorToken = fs.StringLong("extractor-token", "", "Bearer token for the extraction service (optional)")
		extractTimeout = fs.DurationLong("extract-timeout", scanning.DefaultExtractTimeout, "Field extraction timeout")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		analyzeRate    = fs.Float64Long("analyze-rate", 0.2, "Manual re-analyze requests per second per client (0 disables)")
		analyzeBurst   = fs.IntLong("analyze-burst", 3, "Manual re-analyze burst per client")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := capture.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize extractor based on type
	var extractor scanning.Extractor
	switch *extractorType {
	case "http":
		slog.Info("Initializing HTTP extractor...", "url", *extractorURL, "timeout", *extractTimeout)
		extractor, err = scanning.NewHTTPExtractor(*extractorURL, *extractorToken, *extractTimeout)
		if err != nil {
			slog.Error("Failed to initialize HTTP extractor", "error", err)
			os.Exit(1)
		}
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = scanning.NewGeminiExtractor(context.Background(), apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "none":
		slog.Warn("No field extractor configured, forms must be filled by hand")
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "http, gemini or none")
		os.Exit(1)
	}
	if extractor != nil {
		defer extractor.Close()
	}

	// Initialize storage
	slog.Info("Initializing storage...", "type", *storageType)
	var (
		store capture.Storage
		files capture.FileSource
	)
	switch *storageType {
	case "local":
		base := *publicURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d/files", *port)
		}
		local, err := capture.NewLocalStorage(*storagePath, base)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store, files = local, local
	case "s3":
		if *s3Bucket == "" {
			slog.Error("S3 bucket is required. Set --s3-bucket flag or EXPENSE_CAPTURE_S3_BUCKET environment variable")
			os.Exit(1)
		}
		s3Store, err := capture.NewS3Storage(*s3Bucket, *s3Region, *publicURL)
		if err != nil {
			slog.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		store = s3Store
	default:
		slog.Error("Invalid storage type", "type", *storageType, "valid", "local or s3")
		os.Exit(1)
	}

	// Initialize service
	captureService := capture.NewService(db, extractor, store)
	defer captureService.Close()

	// Initialize server
	basicAuth := capture.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := capture.NewServer(captureService, basicAuth, capture.ServerOptions{
		Files:        files,
		AnalyzeRate:  *analyzeRate,
		AnalyzeBurst: *analyzeBurst,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// setupLogging installs a text handler at the named level
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
