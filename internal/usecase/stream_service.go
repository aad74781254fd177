package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/metrics"
)

// StreamInput contains the input parameters for opening a variant stream.
type StreamInput struct {
	Reference  string
	VariantTag string
	// Range is the caller's Range header, forwarded verbatim when non-empty.
	Range string
}

// StreamOutput is an open upstream response ready to be relayed.
// The caller must close Body.
type StreamOutput struct {
	StatusCode    int
	ContentLength int64 // -1 when unknown
	ContentType   string
	ContentRange  string
	AcceptRanges  string
	Body          io.ReadCloser

	Variant  model.Variant
	Metadata model.ItemMetadata
}

// StreamService defines the interface for the streaming proxy.
type StreamService interface {
	// Open resolves the item, selects the variant by exact tag and starts the upstream fetch.
	// Returns repository.ErrVariantNotFound for an unknown tag and
	// repository.ErrUpstreamUnavailable when the fetch fails or is rejected.
	// If ctx ends before upstream answers, the error wraps ctx.Err() and the cache is left alone.
	Open(ctx context.Context, input StreamInput) (*StreamOutput, error)
}

// StreamServiceConfig holds configuration for StreamService.
type StreamServiceConfig struct {
	// UserAgent and Referer are sent on every upstream fetch.
	UserAgent string
	Referer   string

	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// NewUpstreamClient builds the HTTP client used for upstream fetches.
// There is no overall timeout so long downloads are not cut off.
func NewUpstreamClient(cfg StreamServiceConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.TLSHandshakeTimeout
	transport.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	// Bytes are relayed as-is; transparent decompression would break Content-Length.
	transport.DisableCompression = true

	return &http.Client{Transport: transport}
}

type streamService struct {
	lookup    LookupService
	client    *http.Client
	userAgent string
	referer   string
	logger    *slog.Logger
}

// NewStreamService creates a new StreamService.
func NewStreamService(lookup LookupService, client *http.Client, cfg StreamServiceConfig, logger *slog.Logger) StreamService {
	if client == nil {
		client = NewUpstreamClient(cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &streamService{
		lookup:    lookup,
		client:    client,
		userAgent: cfg.UserAgent,
		referer:   cfg.Referer,
		logger:    logger,
	}
}

func (s *streamService) Open(ctx context.Context, input StreamInput) (*StreamOutput, error) {
	result, err := s.lookup.Resolve(ctx, input.Reference)
	if err != nil {
		return nil, err
	}

	variant, ok := result.FindVariant(input.VariantTag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", repository.ErrVariantNotFound, input.VariantTag)
	}

	// The request carries ctx, so a caller disconnect aborts the upstream fetch.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, variant.URL, nil)
	if err != nil {
		s.invalidate(ctx, input.Reference)
		return nil, fmt.Errorf("%w: build request: %v", repository.ErrUpstreamUnavailable, err)
	}
	if input.Range != "" {
		req.Header.Set("Range", input.Range)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if s.referer != "" {
		req.Header.Set("Referer", s.referer)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller gave up; the cached URL says nothing about upstream health.
			return nil, fmt.Errorf("upstream fetch: %w", ctxErr)
		}
		metrics.ProxyResponsesTotal.WithLabelValues("error").Inc()
		s.invalidate(ctx, input.Reference)
		return nil, fmt.Errorf("%w: %v", repository.ErrUpstreamUnavailable, err)
	}
	metrics.ProxyResponsesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		_ = resp.Body.Close()
		// Most often an expired signed URL; the caller's retry will re-resolve.
		s.invalidate(ctx, input.Reference)
		return nil, fmt.Errorf("%w: upstream status %d", repository.ErrUpstreamUnavailable, resp.StatusCode)
	}

	return &StreamOutput{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentRange:  resp.Header.Get("Content-Range"),
		AcceptRanges:  resp.Header.Get("Accept-Ranges"),
		Body:          resp.Body,
		Variant:       variant,
		Metadata:      result.Metadata,
	}, nil
}

// invalidate drops the cached entry even if the caller has already gone away.
func (s *streamService) invalidate(ctx context.Context, reference string) {
	id, err := s.lookup.Normalize(reference)
	if err != nil {
		return
	}
	if err := s.lookup.Invalidate(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("failed to invalidate cache entry after upstream failure",
			slog.String("item_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}
