package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

func lookupServing(url string) *mockLookupService {
	return &mockLookupService{
		resolveFn: func(ctx context.Context, reference string) (*model.ResolutionResult, error) {
			result := sampleResult()
			result.Variants[0].URL = url
			return result, nil
		},
	}
}

func testStreamConfig() StreamServiceConfig {
	return StreamServiceConfig{
		UserAgent:             "vidrelay-test/1.0",
		Referer:               "https://www.youtube.com/",
		DialTimeout:           time.Second,
		TLSHandshakeTimeout:   time.Second,
		ResponseHeaderTimeout: 2 * time.Second,
	}
}

func TestStreamService_Open_ForwardsRange(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=100-" {
			t.Errorf("upstream Range = %q, want %q", got, "bytes=100-")
		}
		if got := r.Header.Get("User-Agent"); got != "vidrelay-test/1.0" {
			t.Errorf("upstream User-Agent = %q", got)
		}
		if got := r.Header.Get("Referer"); got != "https://www.youtube.com/" {
			t.Errorf("upstream Referer = %q", got)
		}
		if got := r.Header.Get("Accept-Encoding"); got != "identity" {
			t.Errorf("upstream Accept-Encoding = %q, want identity", got)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Range", "bytes 100-109/110")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer upstream.Close()

	svc := NewStreamService(lookupServing(upstream.URL), upstream.Client(), testStreamConfig(), discardLogger())

	out, err := svc.Open(context.Background(), StreamInput{Reference: "item1", VariantTag: "22", Range: "bytes=100-"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer out.Body.Close()

	if out.StatusCode != http.StatusPartialContent {
		t.Errorf("StatusCode = %d, want %d", out.StatusCode, http.StatusPartialContent)
	}
	if out.ContentRange != "bytes 100-109/110" {
		t.Errorf("ContentRange = %q", out.ContentRange)
	}
	if out.ContentLength != 10 {
		t.Errorf("ContentLength = %d, want 10", out.ContentLength)
	}
	if out.ContentType != "video/mp4" || out.AcceptRanges != "bytes" {
		t.Errorf("ContentType = %q, AcceptRanges = %q", out.ContentType, out.AcceptRanges)
	}
	if out.Variant.Tag != "22" {
		t.Errorf("Variant.Tag = %q, want 22", out.Variant.Tag)
	}

	body, _ := io.ReadAll(out.Body)
	if string(body) != "0123456789" {
		t.Errorf("body = %q", body)
	}
}

func TestStreamService_Open_NoRange(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Range"]; ok {
			t.Error("Range header must not be sent when the caller sent none")
		}
		_, _ = w.Write([]byte("whole"))
	}))
	defer upstream.Close()

	svc := NewStreamService(lookupServing(upstream.URL), upstream.Client(), testStreamConfig(), discardLogger())

	out, err := svc.Open(context.Background(), StreamInput{Reference: "item1", VariantTag: "22"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer out.Body.Close()

	if out.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", out.StatusCode, http.StatusOK)
	}
}

func TestStreamService_Open_VariantNotFound(t *testing.T) {
	lookup := &mockLookupService{}
	svc := NewStreamService(lookup, http.DefaultClient, testStreamConfig(), discardLogger())

	_, err := svc.Open(context.Background(), StreamInput{Reference: "item1", VariantTag: "999"})
	if !errors.Is(err, repository.ErrVariantNotFound) {
		t.Errorf("Open() error = %v, want %v", err, repository.ErrVariantNotFound)
	}
	if len(lookup.invalidated) != 0 {
		t.Errorf("unexpected invalidation: %v", lookup.invalidated)
	}
}

func TestStreamService_Open_ResolutionErrorPropagates(t *testing.T) {
	lookup := &mockLookupService{
		resolveFn: func(ctx context.Context, reference string) (*model.ResolutionResult, error) {
			return nil, repository.ErrResolution
		},
	}
	svc := NewStreamService(lookup, http.DefaultClient, testStreamConfig(), discardLogger())

	_, err := svc.Open(context.Background(), StreamInput{Reference: "item1", VariantTag: "22"})
	if !errors.Is(err, repository.ErrResolution) {
		t.Errorf("Open() error = %v, want %v", err, repository.ErrResolution)
	}
}

func TestStreamService_Open_UpstreamRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "forbidden (expired signature)", status: http.StatusForbidden},
		{name: "not found", status: http.StatusNotFound},
		{name: "server error", status: http.StatusServiceUnavailable},
		{name: "range not satisfiable", status: http.StatusRequestedRangeNotSatisfiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer upstream.Close()

			lookup := lookupServing(upstream.URL)
			svc := NewStreamService(lookup, upstream.Client(), testStreamConfig(), discardLogger())

			_, err := svc.Open(context.Background(), StreamInput{Reference: "item1", VariantTag: "22"})
			if !errors.Is(err, repository.ErrUpstreamUnavailable) {
				t.Fatalf("Open() error = %v, want %v", err, repository.ErrUpstreamUnavailable)
			}
			if len(lookup.invalidated) != 1 || lookup.invalidated[0] != "item1" {
				t.Errorf("invalidated = %v, want [item1]", lookup.invalidated)
			}
		})
	}
}

func TestStreamService_Open_TransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	lookup := lookupServing(url)
	svc := NewStreamService(lookup, http.DefaultClient, testStreamConfig(), discardLogger())

	_, err := svc.Open(context.Background(), StreamInput{Reference: "item1", VariantTag: "22"})
	if !errors.Is(err, repository.ErrUpstreamUnavailable) {
		t.Fatalf("Open() error = %v, want %v", err, repository.ErrUpstreamUnavailable)
	}
	if len(lookup.invalidated) != 1 {
		t.Errorf("invalidated = %v, want one entry", lookup.invalidated)
	}
}

func TestStreamService_Open_InvalidationSurvivesCancellation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	lookup := lookupServing(upstream.URL)
	lookup.invalidateFn = func(ictx context.Context, id model.ItemID) error {
		cancel()
		if ictx.Err() != nil {
			t.Error("invalidation context must not inherit the caller's cancellation")
		}
		return nil
	}
	svc := NewStreamService(lookup, upstream.Client(), testStreamConfig(), discardLogger())

	if _, err := svc.Open(ctx, StreamInput{Reference: "item1", VariantTag: "22"}); !errors.Is(err, repository.ErrUpstreamUnavailable) {
		t.Errorf("Open() error = %v, want %v", err, repository.ErrUpstreamUnavailable)
	}
}

func TestStreamService_Open_CallerDeadlineKeepsEntry(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer upstream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	lookup := lookupServing(upstream.URL)
	svc := NewStreamService(lookup, upstream.Client(), testStreamConfig(), discardLogger())

	_, err := svc.Open(ctx, StreamInput{Reference: "item1", VariantTag: "22"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Open() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if errors.Is(err, repository.ErrUpstreamUnavailable) {
		t.Errorf("caller deadline must not be reported as %v", repository.ErrUpstreamUnavailable)
	}
	if len(lookup.invalidated) != 0 {
		t.Errorf("invalidated = %v, want none", lookup.invalidated)
	}
}

func TestNewUpstreamClient(t *testing.T) {
	cfg := testStreamConfig()
	client := NewUpstreamClient(cfg)

	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 so long streams are not cut off", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", client.Transport)
	}
	if transport.ResponseHeaderTimeout != cfg.ResponseHeaderTimeout {
		t.Errorf("ResponseHeaderTimeout = %v, want %v", transport.ResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
	}
	if !transport.DisableCompression {
		t.Error("DisableCompression = false, want true")
	}
}
