package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/repository"
)

func validLesson(title string) CreateLessonRequest {
	return CreateLessonRequest{
		Title:           title,
		Difficulty:      "beginner",
		Language:        "Inglés",
		Category:        "vocabulary",
		DurationMinutes: 10,
		XPReward:        20,
	}
}

func createLesson(t *testing.T, env *testEnv, author *models.Account) *models.Lesson {
	t.Helper()
	lesson, err := env.lessons.CreateLesson(context.Background(), env.actor(author), validLesson("Saludos"))
	require.NoError(t, err)
	return lesson
}

func addMultipleChoice(t *testing.T, env *testEnv, author *models.Account, lessonID uuid.UUID) *models.ActivityView {
	t.Helper()
	view, err := env.lessons.AddActivity(context.Background(), env.actor(author), lessonID, AddActivityRequest{
		Type:          string(models.ActivityMultipleChoice),
		Prompt:        "Capital of France?",
		Options:       json.RawMessage(`["Paris","Lyon"]`),
		CorrectAnswer: json.RawMessage(`"Paris"`),
		Feedback:      map[string]string{"correct": "¡Bien!"},
		Points:        10,
	})
	require.NoError(t, err)
	return view
}

func TestLessonService_CreateLesson(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	student := env.registerVerified("ana@example.com", models.RoleStudent)

	lesson := createLesson(t, env, teacher)
	assert.Equal(t, models.LessonDraft, lesson.State)
	assert.Equal(t, teacher.ID, lesson.AuthorID)

	_, err := env.lessons.CreateLesson(ctx, env.actor(student), validLesson("Nope"))
	assert.True(t, apierrors.Is(err, apierrors.ErrForbidden))

	bad := validLesson("")
	bad.DurationMinutes = 0
	bad.XPReward = -1
	_, err = env.lessons.CreateLesson(ctx, env.actor(teacher), bad)
	require.Error(t, err)
	details, ok := apierrors.AsAPIError(err).Details.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "duration_minutes")
	assert.Contains(t, details, "xp_reward")

	withPrereq := validLesson("Despedidas")
	withPrereq.Prerequisites = []uuid.UUID{uuid.New()}
	_, err = env.lessons.CreateLesson(ctx, env.actor(teacher), withPrereq)
	assert.Equal(t, "validation_error", apierrors.KindOf(err))
}

func TestLessonService_PublishArchive(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	other := env.registerVerified("otro@example.com", models.RoleTeacher)
	admin := env.registerVerified("admin@example.com", models.RoleAdmin)
	lesson := createLesson(t, env, teacher)

	_, err := env.lessons.PublishLesson(ctx, env.actor(other), lesson.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrForbidden))

	published, err := env.lessons.PublishLesson(ctx, env.actor(teacher), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonPublished, published.State)

	_, err = env.lessons.PublishLesson(ctx, env.actor(teacher), lesson.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrPolicy))

	archived, err := env.lessons.ArchiveLesson(ctx, env.actor(admin), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonArchived, archived.State)

	_, err = env.lessons.PublishLesson(ctx, env.actor(admin), uuid.New())
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}

func TestLessonService_GetLesson(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	student := env.registerVerified("ana@example.com", models.RoleStudent)
	lesson := createLesson(t, env, teacher)
	addMultipleChoice(t, env, teacher, lesson.ID)

	_, err := env.lessons.GetLesson(ctx, env.actor(student), lesson.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound), "drafts are hidden from students")

	_, err = env.lessons.PublishLesson(ctx, env.actor(teacher), lesson.ID)
	require.NoError(t, err)

	forStudent, err := env.lessons.GetLesson(ctx, env.actor(student), lesson.ID)
	require.NoError(t, err)
	require.Len(t, forStudent.Activities, 1)
	assert.Nil(t, forStudent.Activities[0].CorrectAnswer)

	raw, err := json.Marshal(forStudent)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_answer")

	forTeacher, err := env.lessons.GetLesson(ctx, env.actor(teacher), lesson.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `"Paris"`, string(forTeacher.Activities[0].CorrectAnswer))
}

func TestLessonService_ListLessons(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	student := env.registerVerified("ana@example.com", models.RoleStudent)
	draft := createLesson(t, env, teacher)
	published := createLesson(t, env, teacher)
	_, err := env.lessons.PublishLesson(ctx, env.actor(teacher), published.ID)
	require.NoError(t, err)

	all, err := env.lessons.ListLessons(ctx, env.actor(teacher), repository.LessonFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	visible, err := env.lessons.ListLessons(ctx, env.actor(student), repository.LessonFilter{State: models.LessonDraft})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, published.ID, visible[0].ID)
	assert.NotEqual(t, draft.ID, visible[0].ID)

	_, err = env.lessons.ListLessons(ctx, env.actor(teacher), repository.LessonFilter{Difficulty: "expert"})
	assert.Equal(t, "validation_error", apierrors.KindOf(err))
}

func TestLessonService_AddActivity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	lesson := createLesson(t, env, teacher)

	first := addMultipleChoice(t, env, teacher, lesson.ID)
	second := addMultipleChoice(t, env, teacher, lesson.ID)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)

	tests := []struct {
		name  string
		req   AddActivityRequest
		field string
	}{
		{"unknown type", AddActivityRequest{Type: "essay", Prompt: "p", CorrectAnswer: json.RawMessage(`"x"`)}, "type"},
		{"missing answer", AddActivityRequest{Type: "true_false", Prompt: "p"}, "correct_answer"},
		{"null answer", AddActivityRequest{Type: "true_false", Prompt: "p", CorrectAnswer: json.RawMessage(`null`)}, "correct_answer"},
		{"negative points", AddActivityRequest{Type: "true_false", Prompt: "p", CorrectAnswer: json.RawMessage(`true`), Points: -1}, "points"},
		{"missing prompt", AddActivityRequest{Type: "true_false", CorrectAnswer: json.RawMessage(`true`)}, "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.lessons.AddActivity(ctx, env.actor(teacher), lesson.ID, tt.req)
			require.Error(t, err)
			apiErr := apierrors.AsAPIError(err)
			assert.Equal(t, "validation_error", apiErr.Code)
			switch d := apiErr.Details.(type) {
			case map[string]string:
				if f, ok := d["field"]; ok {
					assert.Equal(t, tt.field, f)
				} else {
					assert.Contains(t, d, tt.field)
				}
			default:
				t.Fatalf("unexpected details %T", apiErr.Details)
			}
		})
	}

	_, err := env.lessons.AddActivity(ctx, env.actor(teacher), uuid.New(), AddActivityRequest{
		Type: "true_false", Prompt: "p", CorrectAnswer: json.RawMessage(`true`),
	})
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}

func TestLessonService_DeleteActivity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	lesson := createLesson(t, env, teacher)
	other := createLesson(t, env, teacher)
	act := addMultipleChoice(t, env, teacher, lesson.ID)

	err := env.lessons.DeleteActivity(ctx, env.actor(teacher), other.ID, act.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound))

	require.NoError(t, env.lessons.DeleteActivity(ctx, env.actor(teacher), lesson.ID, act.ID))
	_, err = env.lessons.GetActivity(ctx, env.actor(teacher), act.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}

func TestLessonService_DeleteLesson(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	lesson := createLesson(t, env, teacher)
	addMultipleChoice(t, env, teacher, lesson.ID)
	media := seedMedia(env, teacher, models.MediaAvailable)
	_, err := env.lessons.AttachMultimedia(ctx, env.actor(teacher), lesson.ID, media.ID)
	require.NoError(t, err)

	env.store.failOn = "lessons.delete"
	err = env.lessons.DeleteLesson(ctx, env.actor(teacher), lesson.ID)
	assert.Equal(t, apierrors.ErrInternal, err)
	assert.Len(t, env.store.activities, 1)
	assert.Len(t, env.store.links, 1)

	require.NoError(t, env.lessons.DeleteLesson(ctx, env.actor(teacher), lesson.ID))
	assert.Empty(t, env.store.lessons)
	assert.Empty(t, env.store.activities)
	assert.Empty(t, env.store.links)
	assert.Contains(t, env.store.media, media.ID)
}

func TestLessonService_AttachMultimedia(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	lesson := createLesson(t, env, teacher)
	available := seedMedia(env, teacher, models.MediaAvailable)
	broken := seedMedia(env, teacher, models.MediaError)

	attached, err := env.lessons.AttachMultimedia(ctx, env.actor(teacher), lesson.ID, available.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attached.UsageCount)
	assert.NotNil(t, attached.LastUsedAt)

	again, err := env.lessons.AttachMultimedia(ctx, env.actor(teacher), lesson.ID, available.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.UsageCount)

	_, err = env.lessons.AttachMultimedia(ctx, env.actor(teacher), lesson.ID, broken.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrPolicy))

	_, err = env.lessons.AttachMultimedia(ctx, env.actor(teacher), lesson.ID, uuid.New())
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}

func TestLessonService_CheckPrerequisites(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	basics := createLesson(t, env, teacher)

	req := validLesson("Conversación")
	req.Prerequisites = []uuid.UUID{basics.ID}
	advanced, err := env.lessons.CreateLesson(ctx, env.actor(teacher), req)
	require.NoError(t, err)

	ok, err := env.lessons.CheckPrerequisites(ctx, advanced.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.lessons.CheckPrerequisites(ctx, advanced.ID, []uuid.UUID{basics.ID})
	require.NoError(t, err)
	assert.True(t, ok)
}

func seedMedia(env *testEnv, owner *models.Account, state models.MediaState) *models.Multimedia {
	m := &models.Multimedia{
		ID:           uuid.New(),
		OriginalName: "hola.mp3",
		StoredName:   "01HZZZ.mp3",
		Type:         models.MediaAudio,
		MIMEType:     "audio/mpeg",
		URL:          "/media/audio/01HZZZ.mp3",
		SizeBytes:    1024,
		State:        state,
		UploadedBy:   owner.ID,
	}
	env.store.media[m.ID] = *m
	return m
}

func TestLessonService_GetActivity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	teacher := env.registerVerified("profe@example.com", models.RoleTeacher)
	student := env.registerVerified("ana@example.com", models.RoleStudent)
	lesson := createLesson(t, env, teacher)
	act := addMultipleChoice(t, env, teacher, lesson.ID)

	_, err := env.lessons.GetActivity(ctx, env.actor(student), act.ID)
	assert.True(t, apierrors.Is(err, apierrors.ErrNotFound), "draft activity is hidden from learners")

	view, err := env.lessons.GetActivity(ctx, env.actor(teacher), act.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `"Paris"`, string(view.CorrectAnswer))

	_, err = env.lessons.PublishLesson(ctx, env.actor(teacher), lesson.ID)
	require.NoError(t, err)

	view, err = env.lessons.GetActivity(ctx, env.actor(student), act.ID)
	require.NoError(t, err)
	assert.Equal(t, "Capital of France?", view.Prompt)
	assert.Nil(t, view.CorrectAnswer)
}
