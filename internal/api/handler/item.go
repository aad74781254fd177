package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hszk-dev/vidrelay/internal/api/middleware"
	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/usecase"
)

// Request/Response types

type InfoRequest struct {
	URL string `json:"url"`
}

type InfoResponse struct {
	VideoDetails VideoDetails     `json:"videoDetails"`
	Formats      []FormatResponse `json:"formats"`
}

type VideoDetails struct {
	Title         string `json:"title"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	LengthSeconds string `json:"lengthSeconds"`
	Author        string `json:"author"`
}

type FormatResponse struct {
	Itag          string `json:"itag"`
	QualityLabel  string `json:"qualityLabel,omitempty"`
	Container     string `json:"container"`
	HasAudio      bool   `json:"hasAudio"`
	HasVideo      bool   `json:"hasVideo"`
	URL           string `json:"url"`
	ContentLength string `json:"contentLength,omitempty"`
	MimeType      string `json:"mimeType"`
}

// ItemHandler handles metadata and download requests.
type ItemHandler struct {
	lookup usecase.LookupService
	stream usecase.StreamService
	logger *slog.Logger
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(lookup usecase.LookupService, stream usecase.StreamService, logger *slog.Logger) *ItemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemHandler{lookup: lookup, stream: stream, logger: logger}
}

// Info handles POST /info
func (h *ItemHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req InfoRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	result, err := h.lookup.Resolve(r.Context(), req.URL)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, toInfoResponse(result))
}

// statusClientClosedRequest is the nginx convention for a caller that hung up.
const statusClientClosedRequest = 499

func (h *ItemHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := middleware.RequestLogger(r.Context(), h.logger)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("client went away",
			slog.String("path", r.URL.Path),
		)
		Error(w, statusClientClosedRequest, "client_closed_request", "Request canceled")
	case errors.Is(err, model.ErrInvalidReference):
		Error(w, http.StatusBadRequest, "invalid_reference", "Invalid YouTube URL")
	case errors.Is(err, repository.ErrVariantNotFound):
		Error(w, http.StatusNotFound, "variant_not_found", "Requested format is not available")
	case errors.Is(err, repository.ErrUpstreamUnavailable):
		logger.Warn("upstream fetch failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusBadGateway, "upstream_unavailable", "Upstream fetch failed; retry the request")
	case errors.Is(err, repository.ErrResolution):
		logger.Error("resolution failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, "resolution_failed", "Failed to fetch video info")
	default:
		logger.Error("unexpected error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toInfoResponse(result *model.ResolutionResult) InfoResponse {
	formats := make([]FormatResponse, 0, len(result.Variants))
	for _, v := range result.Variants {
		f := FormatResponse{
			Itag:         v.Tag,
			QualityLabel: v.QualityLabel,
			Container:    v.Container,
			HasAudio:     v.HasAudio,
			HasVideo:     v.HasVideo,
			URL:          v.URL,
			MimeType:     v.MimeType,
		}
		if v.ContentLength > 0 {
			f.ContentLength = strconv.FormatInt(v.ContentLength, 10)
		}
		formats = append(formats, f)
	}

	return InfoResponse{
		VideoDetails: VideoDetails{
			Title:         result.Metadata.Title,
			Thumbnail:     result.Metadata.ThumbnailURL,
			LengthSeconds: strconv.Itoa(result.Metadata.DurationSeconds),
			Author:        result.Metadata.Author,
		},
		Formats: formats,
	}
}
