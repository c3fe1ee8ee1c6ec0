package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/expense-capture/internal/preprocess"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("voucher-preprocess")
	var (
		imagePath   = fs.StringLong("image", "", "Captured voucher image (JPEG, PNG, GIF, WebP or HEIC)")
		modeName    = fs.StringLong("mode", preprocess.Soft.String(), "Enhancement mode: original, soft or strong")
		outDir      = fs.StringLong("out", ".", "Directory for processed.jpg and payload.jpg")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("VOUCHER_PREPROCESS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *imagePath == "" {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: --image is required")
		os.Exit(1)
	}

	mode, err := preprocess.ParseMode(*modeName)
	if err != nil {
		slog.Error("Invalid mode", "mode", *modeName, "error", err)
		os.Exit(1)
	}

	if err := run(*imagePath, mode, *outDir); err != nil {
		slog.Error("Preprocessing failed", "image", *imagePath, "error", err)
		os.Exit(1)
	}
}

// run processes one image and writes both outputs into outDir
func run(imagePath string, mode preprocess.Mode, outDir string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	// Decode sniffs the bytes when the extension is unknown
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath)))
	result, err := preprocess.Process(data, contentType, mode)
	if err != nil {
		return err
	}

	threshold, regionBuf := result.Threshold, result.Processed
	if mode == preprocess.Original {
		soft := preprocess.Reprocess(result.Original, preprocess.Soft)
		threshold, regionBuf = soft.Threshold, soft.Processed
	}
	box := preprocess.DetectContentRegion(regionBuf, threshold)
	slog.Info("Processed voucher",
		"image", imagePath,
		"mode", mode,
		"width", result.Original.Width,
		"height", result.Original.Height,
		"threshold", result.Threshold,
		"region_top", box.Top,
		"region_bottom", box.Bottom,
		"region_left", box.Left,
		"region_right", box.Right,
	)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	processed, err := preprocess.Encode(result.Processed, preprocess.ArchiveQuality)
	if err != nil {
		return fmt.Errorf("encoding processed image: %w", err)
	}
	if err := writeOutput(filepath.Join(outDir, "processed.jpg"), processed); err != nil {
		return err
	}

	payload, err := preprocess.ExtractionPayload(result.Processed)
	if err != nil {
		return err
	}
	return writeOutput(filepath.Join(outDir, "payload.jpg"), payload)
}

func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	slog.Info("Wrote output", "path", path, "bytes", len(data))
	return nil
}
