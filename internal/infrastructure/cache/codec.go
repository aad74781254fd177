package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

// resultJSON is the persisted representation of a ResolutionResult.
// Using explicit structs avoids coupling the on-disk format to the domain model.
type resultJSON struct {
	Metadata metadataJSON  `json:"metadata"`
	Variants []variantJSON `json:"variants"`
}

type metadataJSON struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	DurationSeconds int    `json:"duration_seconds"`
	ThumbnailURL    string `json:"thumbnail_url"`
}

type variantJSON struct {
	Tag           string `json:"tag"`
	QualityLabel  string `json:"quality_label,omitempty"`
	Container     string `json:"container"`
	HasAudio      bool   `json:"has_audio"`
	HasVideo      bool   `json:"has_video"`
	URL           string `json:"url"`
	ContentLength int64  `json:"content_length,omitempty"`
	MimeType      string `json:"mime_type"`
}

// entryJSON wraps a result with its creation time for stores without native timestamps.
type entryJSON struct {
	CreatedAt string     `json:"created_at"`
	Result    resultJSON `json:"result"`
}

// EncodeResult serializes a ResolutionResult.
func EncodeResult(result *model.ResolutionResult) ([]byte, error) {
	return json.Marshal(toResultJSON(result))
}

// DecodeResult parses a serialized ResolutionResult.
// Any decode or validation failure wraps repository.ErrCorruptEntry.
func DecodeResult(data []byte) (*model.ResolutionResult, error) {
	var r resultJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrCorruptEntry, err)
	}
	return fromResultJSON(r)
}

// EncodeEntry serializes a result together with its creation time.
func EncodeEntry(entry *model.CacheEntry) ([]byte, error) {
	return json.Marshal(entryJSON{
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		Result:    toResultJSON(&entry.Result),
	})
}

// DecodeEntry parses data produced by EncodeEntry.
func DecodeEntry(id model.ItemID, data []byte) (*model.CacheEntry, error) {
	var e entryJSON
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrCorruptEntry, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: parse created_at: %v", repository.ErrCorruptEntry, err)
	}

	result, err := fromResultJSON(e.Result)
	if err != nil {
		return nil, err
	}

	return &model.CacheEntry{
		ID:        id,
		Result:    *result,
		CreatedAt: createdAt,
	}, nil
}

func toResultJSON(result *model.ResolutionResult) resultJSON {
	r := resultJSON{
		Metadata: metadataJSON{
			Title:           result.Metadata.Title,
			Author:          result.Metadata.Author,
			DurationSeconds: result.Metadata.DurationSeconds,
			ThumbnailURL:    result.Metadata.ThumbnailURL,
		},
		Variants: make([]variantJSON, 0, len(result.Variants)),
	}
	for _, v := range result.Variants {
		r.Variants = append(r.Variants, variantJSON{
			Tag:           v.Tag,
			QualityLabel:  v.QualityLabel,
			Container:     v.Container,
			HasAudio:      v.HasAudio,
			HasVideo:      v.HasVideo,
			URL:           v.URL,
			ContentLength: v.ContentLength,
			MimeType:      v.MimeType,
		})
	}
	return r
}

func fromResultJSON(r resultJSON) (*model.ResolutionResult, error) {
	if r.Variants == nil {
		return nil, fmt.Errorf("%w: missing variants", repository.ErrCorruptEntry)
	}

	result := &model.ResolutionResult{
		Metadata: model.ItemMetadata{
			Title:           r.Metadata.Title,
			Author:          r.Metadata.Author,
			DurationSeconds: r.Metadata.DurationSeconds,
			ThumbnailURL:    r.Metadata.ThumbnailURL,
		},
		Variants: make([]model.Variant, 0, len(r.Variants)),
	}
	for i, v := range r.Variants {
		if v.Tag == "" || v.URL == "" {
			return nil, fmt.Errorf("%w: variant %d lacks tag or url", repository.ErrCorruptEntry, i)
		}
		result.Variants = append(result.Variants, model.Variant{
			Tag:           v.Tag,
			QualityLabel:  v.QualityLabel,
			Container:     v.Container,
			HasAudio:      v.HasAudio,
			HasVideo:      v.HasVideo,
			URL:           v.URL,
			ContentLength: v.ContentLength,
			MimeType:      v.MimeType,
		})
	}
	return result, nil
}
