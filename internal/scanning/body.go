package scanning

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// maxResponseBytes bounds how much of an extractor reply is read
const maxResponseBytes = 1 << 20

// acceptEncoding is sent with every request. Setting it disables the
// transport's transparent gzip handling, so readBody decodes all three.
const acceptEncoding = "gzip, deflate, br"

// readBody returns the decoded response body, handling compression
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader
	contentEncoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch contentEncoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "", "identity":
		reader = resp.Body
	default:
		slog.Warn("Unsupported content encoding, reading body as is", "content_encoding", contentEncoding)
		reader = resp.Body
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
