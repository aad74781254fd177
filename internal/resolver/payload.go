package resolver

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
)

// payload is the subset of yt-dlp's --dump-single-json output we consume.
type payload struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Uploader   string      `json:"uploader"`
	Channel    string      `json:"channel"`
	Duration   float64     `json:"duration"`
	Thumbnail  string      `json:"thumbnail"`
	Thumbnails []thumbnail `json:"thumbnails"`
	Formats    []format    `json:"formats"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type format struct {
	FormatID       string  `json:"format_id"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	URL            string  `json:"url"`
	Protocol       string  `json:"protocol"`
	FileSize       float64 `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
}

func (p payload) toResult() *model.ResolutionResult {
	author := p.Uploader
	if author == "" {
		author = p.Channel
	}

	// yt-dlp lists thumbnails in ascending preference.
	thumb := p.Thumbnail
	if n := len(p.Thumbnails); n > 0 && p.Thumbnails[n-1].URL != "" {
		thumb = p.Thumbnails[n-1].URL
	}

	result := &model.ResolutionResult{
		Metadata: model.ItemMetadata{
			Title:           p.Title,
			Author:          author,
			DurationSeconds: int(math.Round(p.Duration)),
			ThumbnailURL:    thumb,
		},
		Variants: make([]model.Variant, 0, len(p.Formats)),
	}

	seen := make(map[string]bool, len(p.Formats))
	for _, f := range p.Formats {
		v, ok := f.toVariant()
		if !ok || seen[v.Tag] {
			continue
		}
		seen[v.Tag] = true
		result.Variants = append(result.Variants, v)
	}

	result.SortVariants()
	return result
}

// toVariant maps a format, reporting false for formats the proxy cannot relay
// or that carry neither audio nor an mp4 container.
func (f format) toVariant() (model.Variant, bool) {
	if f.FormatID == "" || !isDirect(f) {
		return model.Variant{}, false
	}

	hasAudio := present(f.ACodec)
	hasVideo := present(f.VCodec) || (f.VCodec == "" && f.Height > 0)
	container := strings.ToLower(f.Ext)
	if container != "mp4" && !hasAudio {
		return model.Variant{}, false
	}

	size := f.FileSize
	if size <= 0 {
		size = f.FileSizeApprox
	}

	return model.Variant{
		Tag:           f.FormatID,
		QualityLabel:  qualityLabel(f, hasVideo),
		Container:     container,
		HasAudio:      hasAudio,
		HasVideo:      hasVideo,
		URL:           f.URL,
		ContentLength: int64(size),
		MimeType:      mimeType(container, f, hasAudio, hasVideo),
	}, true
}

// isDirect excludes manifests and fragmented protocols, which have no single byte URL.
func isDirect(f format) bool {
	if !strings.HasPrefix(f.URL, "https://") && !strings.HasPrefix(f.URL, "http://") {
		return false
	}
	switch f.Protocol {
	case "", "https", "http":
		return true
	default:
		return false
	}
}

func present(codec string) bool {
	return codec != "" && codec != "none"
}

func qualityLabel(f format, hasVideo bool) string {
	if !hasVideo {
		return ""
	}
	if f.FormatNote != "" && unicode.IsDigit(rune(f.FormatNote[0])) {
		return f.FormatNote
	}
	if f.Height > 0 {
		return strconv.Itoa(f.Height) + "p"
	}
	return ""
}

func mimeType(container string, f format, hasAudio, hasVideo bool) string {
	kind := "video"
	if hasAudio && !hasVideo {
		kind = "audio"
	}
	switch container {
	case "m4a":
		container = "mp4"
	case "3gp":
		container = "3gpp"
	case "":
		return "application/octet-stream"
	}

	var codecs []string
	if hasVideo && present(f.VCodec) {
		codecs = append(codecs, f.VCodec)
	}
	if hasAudio {
		codecs = append(codecs, f.ACodec)
	}
	if len(codecs) == 0 {
		return kind + "/" + container
	}
	return kind + "/" + container + `; codecs="` + strings.Join(codecs, ", ") + `"`
}
