package middleware

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipPool = sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }}
	brPool   = sync.Pool{New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) }}
)

type compressor interface {
	io.WriteCloser
	Reset(io.Writer)
}

// compressWriter decides when the header is written whether the response is
// compressible. Images are already compressed and pass through untouched.
type compressWriter struct {
	http.ResponseWriter
	encoding    string
	enc         compressor
	wroteHeader bool
	passthru    bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.Header()
	if !compressible(status, h) {
		w.passthru = true
		w.ResponseWriter.WriteHeader(status)
		return
	}
	switch w.encoding {
	case "br":
		w.enc = brPool.Get().(*brotli.Writer)
	default:
		w.enc = gzipPool.Get().(*gzip.Writer)
	}
	w.enc.Reset(w.ResponseWriter)
	h.Set("Content-Encoding", w.encoding)
	h.Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.passthru {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

func (w *compressWriter) Flush() {
	if f, ok := w.enc.(interface{ Flush() error }); ok && !w.passthru {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}

func (w *compressWriter) close() {
	if w.enc == nil {
		return
	}
	_ = w.enc.Close()
	switch enc := w.enc.(type) {
	case *brotli.Writer:
		enc.Reset(io.Discard)
		brPool.Put(enc)
	case *gzip.Writer:
		enc.Reset(io.Discard)
		gzipPool.Put(enc)
	}
	w.enc = nil
}

func compressible(status int, h http.Header) bool {
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified {
		return false
	}
	if h.Get("Content-Encoding") != "" {
		return false
	}
	ct := h.Get("Content-Type")
	return !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream"
}

// negotiateEncoding picks brotli over gzip when the client accepts both.
// Codings listed with q=0 are refused.
func negotiateEncoding(accept string) string {
	var gz bool
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(part, ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// Compress returns a middleware that compresses text responses with brotli or
// gzip depending on Accept-Encoding. Image responses and WebSocket upgrades
// are left alone.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" || strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}
