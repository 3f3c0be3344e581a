package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/config"
	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/repository"
)

// --- In-memory store ---

// memStore keeps rows by value so callers never alias stored state. WithTx
// snapshots every table and restores it when fn fails.
type memStore struct {
	mu sync.Mutex

	accounts   map[uuid.UUID]models.Account
	profiles   map[uuid.UUID]models.Profile
	lessons    map[uuid.UUID]models.Lesson
	activities map[uuid.UUID]models.Activity
	media      map[uuid.UUID]models.Multimedia
	links      map[[2]uuid.UUID]bool
	progress   map[progressKey]models.CourseProgress

	// failOn makes the named repository operation fail once.
	failOn string
}

type progressKey struct {
	account uuid.UUID
	course  string
}

var errInjected = errors.New("injected failure")

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[uuid.UUID]models.Account),
		profiles:   make(map[uuid.UUID]models.Profile),
		lessons:    make(map[uuid.UUID]models.Lesson),
		activities: make(map[uuid.UUID]models.Activity),
		media:      make(map[uuid.UUID]models.Multimedia),
		links:      make(map[[2]uuid.UUID]bool),
		progress:   make(map[progressKey]models.CourseProgress),
	}
}

func (s *memStore) Repos() *repository.Repos {
	return &repository.Repos{
		Accounts:   &memAccounts{s},
		Profiles:   &memProfiles{s},
		Lessons:    &memLessons{s},
		Activities: &memActivities{s},
		Multimedia: &memMedia{s},
		Progress:   &memProgress{s},
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(*repository.Repos) error) (err error) {
	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()
	if err := fn(s.Repos()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memStore{
		accounts:   maps.Clone(s.accounts),
		profiles:   maps.Clone(s.profiles),
		lessons:    maps.Clone(s.lessons),
		activities: maps.Clone(s.activities),
		media:      maps.Clone(s.media),
		links:      maps.Clone(s.links),
		progress:   maps.Clone(s.progress),
	}
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.profiles = snap.profiles
	s.lessons = snap.lessons
	s.activities = snap.activities
	s.media = snap.media
	s.links = snap.links
	s.progress = snap.progress
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		s.failOn = ""
		return errInjected
	}
	return nil
}

// account returns the stored account, or nil.
func (s *memStore) account(id uuid.UUID) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	return &a
}

func (s *memStore) profile(id uuid.UUID) *models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil
	}
	p.Details = cloneDetails(p.Details)
	return &p
}

func (s *memStore) putAccount(a *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
}

func cloneDetails(d models.RoleDetails) models.RoleDetails {
	if d == nil {
		return nil
	}
	raw, err := models.EncodeRoleDetails(d)
	if err != nil {
		panic(err)
	}
	out, err := models.DecodeRoleDetails(d.Role(), raw)
	if err != nil {
		panic(err)
	}
	return out
}

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(ctx context.Context, a *models.Account) error {
	if err := r.s.fail("accounts.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.accounts {
		if other.Email == a.Email || other.PublicID == a.PublicID {
			return apierrors.ErrAlreadyExists
		}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *memAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.s.account(id), nil
}

func (r *memAccounts) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.s.account(id), nil
}

func (r *memAccounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error) {
	return r.GetByEmail(ctx, email)
}

func (r *memAccounts) GetByRecoveryHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.RecoveryTokenHash != nil && *a.RecoveryTokenHash == tokenHash {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAccounts) ListPurgeable(ctx context.Context, deactivatedBefore time.Time) ([]*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Account
	for _, a := range r.s.accounts {
		a := a // per-iteration copy (Go 1.22 loop semantics)
		if a.Status == models.StatusDeactivated && a.DeactivatedAt != nil && !a.DeactivatedAt.After(deactivatedBefore) {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *memAccounts) Update(ctx context.Context, a *models.Account) error {
	if err := r.s.fail("accounts.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; !ok {
		return apierrors.NewNotFoundError("Account")
	}
	a.UpdatedAt = time.Now()
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *memAccounts) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.s.fail("accounts.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.accounts, id)
	return nil
}

type memProfiles struct{ s *memStore }

func (r *memProfiles) Create(ctx context.Context, p *models.Profile) error {
	if err := r.s.fail("profiles.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *p
	stored.Details = cloneDetails(p.Details)
	r.s.profiles[p.AccountID] = stored
	return nil
}

func (r *memProfiles) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	return r.s.profile(accountID), nil
}

func (r *memProfiles) GetByAccountIDForUpdate(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	return r.s.profile(accountID), nil
}

func (r *memProfiles) Update(ctx context.Context, p *models.Profile) error {
	if err := r.s.fail("profiles.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.profiles[p.AccountID]; !ok {
		return apierrors.NewNotFoundError("Profile")
	}
	stored := *p
	stored.Details = cloneDetails(p.Details)
	r.s.profiles[p.AccountID] = stored
	return nil
}

func (r *memProfiles) Delete(ctx context.Context, accountID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.profiles, accountID)
	return nil
}

type memLessons struct{ s *memStore }

func (r *memLessons) Create(ctx context.Context, l *models.Lesson) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.s.lessons[l.ID] = *l
	return nil
}

func (r *memLessons) GetByID(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lessons[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *memLessons) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	return r.GetByID(ctx, id)
}

func (r *memLessons) List(ctx context.Context, f repository.LessonFilter) ([]*models.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Lesson
	for _, l := range r.s.lessons {
		l := l // per-iteration copy (Go 1.22 loop semantics)
		if (f.State != "" && l.State != f.State) ||
			(f.Language != "" && l.Language != f.Language) ||
			(f.Difficulty != "" && l.Difficulty != f.Difficulty) ||
			(f.Category != "" && l.Category != f.Category) ||
			(f.AuthorID != uuid.Nil && l.AuthorID != f.AuthorID) {
			continue
		}
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memLessons) Update(ctx context.Context, l *models.Lesson) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lessons[l.ID] = *l
	return nil
}

func (r *memLessons) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.s.fail("lessons.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.lessons, id)
	return nil
}

func (r *memLessons) AttachMultimedia(ctx context.Context, lessonID, mediaID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]uuid.UUID{lessonID, mediaID}
	if r.s.links[key] {
		return false, nil
	}
	r.s.links[key] = true
	return true, nil
}

func (r *memLessons) DetachAllMultimedia(ctx context.Context, lessonID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key := range r.s.links {
		if key[0] == lessonID {
			delete(r.s.links, key)
		}
	}
	return nil
}

func (r *memLessons) ListMultimedia(ctx context.Context, lessonID uuid.UUID) ([]*models.Multimedia, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Multimedia
	for key := range r.s.links {
		if key[0] == lessonID {
			m := r.s.media[key[1]]
			out = append(out, &m)
		}
	}
	return out, nil
}

type memActivities struct{ s *memStore }

func (r *memActivities) Create(ctx context.Context, a *models.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.activities[a.ID] = *a
	return nil
}

func (r *memActivities) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.activities[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memActivities) ListByLesson(ctx context.Context, lessonID uuid.UUID) ([]*models.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Activity
	for _, a := range r.s.activities {
		a := a // per-iteration copy (Go 1.22 loop semantics)
		if a.LessonID == lessonID {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, func(a, b *models.Activity) int { return a.Position - b.Position })
	return out, nil
}

func (r *memActivities) NextPosition(ctx context.Context, lessonID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := 1
	for _, a := range r.s.activities {
		if a.LessonID == lessonID && a.Position >= next {
			next = a.Position + 1
		}
	}
	return next, nil
}

func (r *memActivities) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.activities, id)
	return nil
}

func (r *memActivities) DeleteByLesson(ctx context.Context, lessonID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, a := range r.s.activities {
		if a.LessonID == lessonID {
			delete(r.s.activities, id)
			n++
		}
	}
	return n, nil
}

type memMedia struct{ s *memStore }

func (r *memMedia) Create(ctx context.Context, m *models.Multimedia) error {
	if err := r.s.fail("multimedia.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.media[m.ID] = *m
	return nil
}

func (r *memMedia) GetByID(ctx context.Context, id uuid.UUID) (*models.Multimedia, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.media[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *memMedia) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Multimedia, error) {
	return r.GetByID(ctx, id)
}

func (r *memMedia) Update(ctx context.Context, m *models.Multimedia) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.media[m.ID] = *m
	return nil
}

func (r *memMedia) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key := range r.s.links {
		if key[1] == id {
			delete(r.s.links, key)
		}
	}
	delete(r.s.media, id)
	return nil
}

type memProgress struct{ s *memStore }

func (r *memProgress) Create(ctx context.Context, p *models.CourseProgress) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := progressKey{p.AccountID, p.CourseID}
	if _, ok := r.s.progress[key]; ok {
		return false, nil
	}
	r.s.progress[key] = *p
	return true, nil
}

func (r *memProgress) Get(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.progress[progressKey{accountID, courseID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memProgress) GetForUpdate(ctx context.Context, accountID uuid.UUID, courseID string) (*models.CourseProgress, error) {
	return r.Get(ctx, accountID, courseID)
}

func (r *memProgress) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.CourseProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.CourseProgress
	for key, p := range r.s.progress {
		p := p // per-iteration copy (Go 1.22 loop semantics)
		if key.account == accountID {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *memProgress) Update(ctx context.Context, p *models.CourseProgress) error {
	if err := r.s.fail("progress.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.progress[progressKey{p.AccountID, p.CourseID}] = *p
	return nil
}

func (r *memProgress) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key := range r.s.progress {
		if key.account == accountID {
			delete(r.s.progress, key)
		}
	}
	return nil
}

var _ repository.Store = (*memStore)(nil)

// --- Collaborators ---

type mockMailer struct {
	mu         sync.Mutex
	codes      map[string]string
	recoveries map[string]string
	err        error
}

func newMockMailer() *mockMailer {
	return &mockMailer{codes: make(map[string]string), recoveries: make(map[string]string)}
}

func (m *mockMailer) SendVerification(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[email] = code
	return nil
}

func (m *mockMailer) SendRecovery(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recoveries[email] = token
	return nil
}

// plainHasher avoids bcrypt's cost in tests.
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) { return "hashed:" + plaintext, nil }
func (plainHasher) Verify(plaintext, digest string) bool  { return digest == "hashed:"+plaintext }

type mockTokens struct{}

func (mockTokens) Issue(account *models.Account) (string, time.Time, error) {
	return "token-" + account.ID.String(), time.Now().Add(time.Hour), nil
}

type mockFiles struct {
	saved   map[string][]byte
	deleted []string
	err     error
}

func newMockFiles() *mockFiles {
	return &mockFiles{saved: make(map[string][]byte)}
}

func (f *mockFiles) Save(ctx context.Context, data []byte, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved[name] = data
	return "/media/" + name, nil
}

func (f *mockFiles) Delete(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	delete(f.saved, name)
	return nil
}

// --- Fixtures ---

// testClock is a settable time source.
type testClock struct{ t time.Time }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *testClock) Set(t time.Time)         { c.t = t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccountsConfig() config.AccountsConfig {
	return config.AccountsConfig{
		VerificationTTL:   10 * time.Minute,
		RecoveryTTL:       time.Hour,
		GracePeriod:       30 * 24 * time.Hour,
		MinPasswordLength: 8,
	}
}

type testEnv struct {
	store    *memStore
	mail     *mockMailer
	files    *mockFiles
	clock    *testClock
	accounts AccountService
	recovery RecoveryService
	progress ProgressService
	lessons  LessonService
	media    MultimediaService
	grading  GradingService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store: newMemStore(),
		mail:  newMockMailer(),
		files: newMockFiles(),
		clock: newTestClock(),
	}
	cfg := testAccountsConfig()
	logger := testLogger()
	clock := WithClock(env.clock.Now)

	env.accounts = NewAccountService(env.store, plainHasher{}, env.mail, mockTokens{}, cfg, logger, clock)
	env.recovery = NewRecoveryService(env.store, plainHasher{}, env.mail, cfg, logger, clock)
	env.progress = NewProgressService(env.store, logger, clock)
	env.lessons = NewLessonService(env.store, logger, clock)
	env.media = NewMultimediaService(env.store, env.files, logger)
	env.grading = NewGradingService(env.store, logger)
	return env
}

func validRegistration(email string) RegisterRequest {
	return RegisterRequest{
		GivenName: "Ana",
		Surname1:  "López",
		Email:     email,
		Password:  "secret-pass",
		Language:  "Inglés",
		Level:     "A1",
	}
}

// registerVerified registers an account with the given role and confirms
// its email.
func (e *testEnv) registerVerified(email string, role models.Role) *models.Account {
	req := validRegistration(email)
	req.Role = role
	req.PreVerified = true
	res, err := e.accounts.Register(context.Background(), req)
	if err != nil {
		panic(err)
	}
	return res.Account
}

func (e *testEnv) actor(a *models.Account) Actor {
	return Actor{AccountID: a.ID, Role: a.Role}
}
