package translator

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const maxResponseBytes = 4 << 20

// readBody returns the decoded response body. Compression is negotiated
// explicitly by the mobile client so the transport never decodes it for us.
func readBody(resp *http.Response) ([]byte, error) {
	raw := io.LimitReader(resp.Body, maxResponseBytes)

	switch encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); encoding {
	case "", "identity":
		return io.ReadAll(raw)
	case "br":
		return io.ReadAll(io.LimitReader(brotli.NewReader(raw), maxResponseBytes))
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(io.LimitReader(gz, maxResponseBytes))
	case "deflate":
		compressed, err := io.ReadAll(raw)
		if err != nil {
			return nil, err
		}
		return inflate(compressed)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// inflate accepts zlib wrapped data and falls back to a raw deflate stream,
// both of which are sent as "deflate" in the wild.
func inflate(compressed []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(compressed)); err == nil {
		defer zr.Close()
		if out, readErr := io.ReadAll(io.LimitReader(zr, maxResponseBytes)); readErr == nil {
			return out, nil
		}
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	return io.ReadAll(io.LimitReader(fr, maxResponseBytes))
}
