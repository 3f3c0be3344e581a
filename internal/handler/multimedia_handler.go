package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/service"
)

// maxUploadBytes bounds multipart bodies. Per-type limits are enforced by
// the multimedia service.
const maxUploadBytes = 50<<20 + 1<<20

// MultimediaHandler handles uploaded assets.
type MultimediaHandler struct {
	media service.MultimediaService
}

// NewMultimediaHandler creates a new multimedia handler.
func NewMultimediaHandler(media service.MultimediaService) *MultimediaHandler {
	return &MultimediaHandler{media: media}
}

// Routes returns a chi router with multimedia routes.
func (h *MultimediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Upload)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)

	return r
}

// Upload handles POST /v1/multimedia (multipart/form-data, field "file")
func (h *MultimediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ValidationError(w, "file", "file is too large")
			return
		}
		response.BadRequest(w, "Invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.ValidationError(w, "file", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Could not read uploaded file"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType, _, _ = mime.ParseMediaType(mimetype.Detect(data).String())
	}

	media, err := h.media.Upload(r.Context(), actor, service.UploadRequest{
		OriginalName: header.Filename,
		MIMEType:     mimeType,
		Type:         models.MediaType(r.FormValue("type")),
		Category:     r.FormValue("category"),
		Description:  r.FormValue("description"),
		AltText:      r.FormValue("alt_text"),
		Data:         data,
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, media)
}

// Get handles GET /v1/multimedia/{id}
func (h *MultimediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	media, err := h.media.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, media)
}

// Delete handles DELETE /v1/multimedia/{id}
func (h *MultimediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := h.media.Delete(r.Context(), actor, id); err != nil {
		response.Error(w, err)
		return
	}

	response.NoContent(w)
}
