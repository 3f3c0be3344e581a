package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaType is the kind of a multimedia asset.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// MediaState is the processing state of a multimedia asset.
type MediaState string

const (
	MediaPending    MediaState = "pending"
	MediaProcessing MediaState = "processing"
	MediaAvailable  MediaState = "available"
	MediaError      MediaState = "error"
)

var allowedMIMETypes = map[MediaType][]string{
	MediaImage:    {"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp", "image/svg+xml"},
	MediaAudio:    {"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg", "audio/webm", "audio/aac"},
	MediaVideo:    {"video/mp4", "video/webm", "video/ogg", "video/quicktime"},
	MediaDocument: {"application/pdf", "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "text/plain"},
}

var maxMediaSize = map[MediaType]int64{
	MediaImage:    5 << 20,
	MediaAudio:    10 << 20,
	MediaVideo:    50 << 20,
	MediaDocument: 10 << 20,
}

// DetectMediaType maps a MIME type to its media type by top-level family.
// The second result is false for unsupported families.
func DetectMediaType(mimeType string) (MediaType, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage, true
	case strings.HasPrefix(mimeType, "audio/"):
		return MediaAudio, true
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo, true
	case strings.HasPrefix(mimeType, "application/"), strings.HasPrefix(mimeType, "text/"):
		return MediaDocument, true
	default:
		return "", false
	}
}

// AcceptsMIME reports whether mimeType is an allowed format for the media type.
func (t MediaType) AcceptsMIME(mimeType string) bool {
	return slices.Contains(allowedMIMETypes[t], mimeType)
}

// MaxSize returns the upload limit in bytes.
func (t MediaType) MaxSize() int64 {
	return maxMediaSize[t]
}

// Multimedia is an uploaded asset that lessons and activities reference.
type Multimedia struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	OriginalName string     `json:"original_name" db:"original_name"`
	StoredName   string     `json:"stored_name" db:"stored_name"`
	Type         MediaType  `json:"type" db:"type"`
	MIMEType     string     `json:"mime_type" db:"mime_type"`
	Category     string     `json:"category,omitempty" db:"category"`
	URL          string     `json:"url" db:"url"`
	SizeBytes    int64      `json:"size_bytes" db:"size_bytes"`
	DurationSecs *int       `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Width        *int       `json:"width,omitempty" db:"width"`
	Height       *int       `json:"height,omitempty" db:"height"`
	State        MediaState `json:"state" db:"state"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	Description  string     `json:"description,omitempty" db:"description"`
	AltText      string     `json:"alt_text,omitempty" db:"alt_text"`
	UsageCount   int        `json:"usage_count" db:"usage_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	UploadedBy   uuid.UUID  `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
