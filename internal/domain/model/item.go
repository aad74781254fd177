package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ItemID is the canonical key of a media item.
// It is used as the cache key and must be safe as a file name or object key.
type ItemID string

func (id ItemID) String() string {
	return string(id)
}

// ItemMetadata describes a media item independently of its renditions.
type ItemMetadata struct {
	Title           string
	Author          string
	DurationSeconds int
	ThumbnailURL    string
}

// Variant is one downloadable rendition of an item.
type Variant struct {
	// Tag identifies the variant within an item and is stable across resolutions.
	Tag          string
	QualityLabel string
	Container    string
	HasAudio     bool
	HasVideo     bool
	// URL is a signed, time-limited direct link issued by the upstream source.
	URL string
	// ContentLength is the approximate byte size; zero when unknown.
	ContentLength int64
	MimeType      string
}

// IsAudioOnly reports whether the variant carries audio but no video.
func (v Variant) IsAudioOnly() bool {
	return v.HasAudio && !v.HasVideo
}

// Resolution returns the nominal vertical resolution parsed from the quality label
// ("1080p60" -> 1080). Labels without a leading number rank as 0.
func (v Variant) Resolution() int {
	label := strings.TrimSpace(v.QualityLabel)
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(label[:end])
	if err != nil {
		return 0
	}
	return n
}

// ResolutionResult is what the resolver returns for an item: metadata plus its variants.
type ResolutionResult struct {
	Metadata ItemMetadata
	Variants []Variant
}

// FindVariant returns the variant with the exact tag.
func (r *ResolutionResult) FindVariant(tag string) (Variant, bool) {
	for _, v := range r.Variants {
		if v.Tag == tag {
			return v, true
		}
	}
	return Variant{}, false
}

// SortVariants orders variants by descending resolution with audio-only variants last.
// Variants of equal rank keep their relative order.
func (r *ResolutionResult) SortVariants() {
	sort.SliceStable(r.Variants, func(i, j int) bool {
		a, b := r.Variants[i], r.Variants[j]
		if a.IsAudioOnly() != b.IsAudioOnly() {
			return !a.IsAudioOnly()
		}
		return a.Resolution() > b.Resolution()
	})
}

// CacheEntry is a persisted resolution result. Entries are immutable once created.
type CacheEntry struct {
	ID        ItemID
	Result    ResolutionResult
	CreatedAt time.Time
}

// Age returns how long ago the entry was created.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
