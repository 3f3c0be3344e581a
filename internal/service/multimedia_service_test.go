package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/ulid"
)

func TestMultimediaService_Upload(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)

	media, err := env.media.Upload(ctx, env.actor(teacher), UploadRequest{
		OriginalName: "Hola.MP3",
		MIMEType:     "audio/mpeg",
		Data:         []byte("ID3..."),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MediaAudio, media.Type)
	assert.Equal(t, models.MediaAvailable, media.State)
	assert.True(t, strings.HasSuffix(media.StoredName, ".mp3"))
	assert.True(t, ulid.IsValid(strings.TrimSuffix(media.StoredName, ".mp3")))
	assert.Equal(t, "/media/audio/"+media.StoredName, media.URL)
	assert.Contains(t, env.files.saved, "audio/"+media.StoredName)
	assert.Contains(t, env.store.media, media.ID)
}

func TestMultimediaService_Upload_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	student := env.registerVerified("ana@example.com", models.RoleStudent)

	_, err := env.media.Upload(ctx, env.actor(student), UploadRequest{OriginalName: "a.png", MIMEType: "image/png", Data: []byte{1}})
	assert.True(t, apierrors.Is(err, apierrors.ErrForbidden))

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"empty file", UploadRequest{OriginalName: "a.png", MIMEType: "image/png"}},
		{"unsupported family", UploadRequest{OriginalName: "a.bin", MIMEType: "font/woff", Data: []byte{1}}},
		{"format not accepted", UploadRequest{OriginalName: "a.bmp", MIMEType: "image/bmp", Data: []byte{1}}},
		{"declared type mismatch", UploadRequest{OriginalName: "a.png", MIMEType: "image/png", Type: models.MediaAudio, Data: []byte{1}}},
		{"too large", UploadRequest{OriginalName: "a.png", MIMEType: "image/png", Data: make([]byte, models.MediaImage.MaxSize()+1)}},
		{"missing name", UploadRequest{MIMEType: "image/png", Data: []byte{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.media.Upload(ctx, env.actor(teacher), tt.req)
			assert.Equal(t, "validation_error", apierrors.KindOf(err))
		})
	}
	assert.Empty(t, env.store.media)
	assert.Empty(t, env.files.saved)
}

func TestMultimediaService_Upload_StorageFailure(t *testing.T) {
	env := newTestEnv()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	env.files.err = errors.New("disk full")

	media, err := env.media.Upload(context.Background(), env.actor(teacher), UploadRequest{
		OriginalName: "a.png", MIMEType: "image/png", Data: []byte{1},
	})
	assert.True(t, apierrors.Is(err, apierrors.ErrServiceUnavailable))
	require.NotNil(t, media)
	assert.Equal(t, models.MediaError, media.State)
	require.NotNil(t, media.ErrorMessage)
	assert.Equal(t, "disk full", *media.ErrorMessage)
	assert.Equal(t, models.MediaError, env.store.media[media.ID].State)
}

func TestMultimediaService_Upload_RegistryFailure(t *testing.T) {
	env := newTestEnv()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	env.store.failOn = "multimedia.create"

	_, err := env.media.Upload(context.Background(), env.actor(teacher), UploadRequest{
		OriginalName: "a.png", MIMEType: "image/png", Data: []byte{1},
	})
	assert.Equal(t, apierrors.ErrInternal, err)
	assert.Empty(t, env.files.saved)
	assert.Len(t, env.files.deleted, 1)
}

func TestMultimediaService_Delete(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.registerVerified("profe@example.com", models.RoleTeacher)
	other := env.registerVerified("otro@example.com", models.RoleTeacher)
	admin := env.registerVerified("admin@example.com", models.RoleAdmin)

	media, err := env.media.Upload(ctx, env.actor(owner), UploadRequest{
		OriginalName: "a.png", MIMEType: "image/png", Data: []byte{1},
	})
	require.NoError(t, err)

	err = env.media.Delete(ctx, env.actor(other), media.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrForbidden))

	require.NoError(t, env.media.Delete(ctx, env.actor(admin), media.ID))
	assert.Empty(t, env.files.saved)

	_, err = env.media.Get(ctx, media.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}
