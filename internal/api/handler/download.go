package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hszk-dev/vidrelay/internal/api/middleware"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidrelay/internal/usecase"
)

const (
	defaultFilename    = "video"
	defaultContainer   = "mp4"
	maxFilenameLength  = 50
	maxContainerLength = 8
	relayBufferSize    = 32 * 1024
)

// Download handles GET /download?url=&itag=&title=&container=
func (h *ItemHandler) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := q.Get("url")
	tag := q.Get("itag")
	if ref == "" || tag == "" {
		Error(w, http.StatusBadRequest, "missing_parameters", "Missing url or itag")
		return
	}

	out, err := h.stream.Open(r.Context(), usecase.StreamInput{
		Reference:  ref,
		VariantTag: tag,
		Range:      r.Header.Get("Range"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer func() { _ = out.Body.Close() }()

	header := w.Header()
	if out.ContentType != "" {
		header.Set("Content-Type", out.ContentType)
	} else if out.Variant.MimeType != "" {
		header.Set("Content-Type", out.Variant.MimeType)
	}
	if out.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(out.ContentLength, 10))
	}
	if out.ContentRange != "" {
		header.Set("Content-Range", out.ContentRange)
	}
	if out.AcceptRanges != "" {
		header.Set("Accept-Ranges", out.AcceptRanges)
	}
	header.Set("Content-Disposition", ContentDisposition(q.Get("title"), q.Get("container")))
	w.WriteHeader(out.StatusCode)

	n, err := relay(w, out.Body)
	metrics.ProxyBytesTotal.Add(float64(n))
	if err != nil {
		if r.Context().Err() != nil {
			// Caller went away; the upstream request was cancelled with it.
			return
		}
		middleware.RequestLogger(r.Context(), h.logger).Warn("stream relay aborted",
			slog.String("itag", tag),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()),
		)
		// Headers are gone already; abort so the caller sees a truncated response.
		panic(http.ErrAbortHandler)
	}
}

// relay copies src to w, flushing after every chunk so bytes reach the caller as they arrive.
func relay(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, relayBufferSize)
	var written int64

	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// ContentDisposition builds an attachment header from a caller-supplied title and container.
// The title keeps ASCII letters and digits, maps everything else to '_' and is cut to 50 characters.
func ContentDisposition(title, container string) string {
	return `attachment; filename="` + sanitizeFilename(title) + "." + sanitizeContainer(container) + `"`
}

func sanitizeFilename(title string) string {
	if title == "" {
		return defaultFilename
	}

	var b strings.Builder
	for _, r := range title {
		if b.Len() >= maxFilenameLength {
			break
		}
		if isASCIIAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func sanitizeContainer(container string) string {
	c := strings.ToLower(container)
	if c == "" || len(c) > maxContainerLength {
		return defaultContainer
	}
	for _, r := range c {
		if !isASCIIAlnum(r) {
			return defaultContainer
		}
	}
	return c
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
