package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/claims-service/internal/auth"
	"github.com/Dan9191/claims-service/internal/documents"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/notify"
	"github.com/Dan9191/claims-service/internal/repository"
)

type memoryDocs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{objects: map[string][]byte{}}
}

func (m *memoryDocs) Store(ctx context.Context, content []byte, meta documents.Metadata) (*documents.Reference, error) {
	if m.failPut {
		return nil, &documents.StorageError{Op: "put", Err: errors.New("bucket unreachable")}
	}
	key := documents.ObjectKey(meta.OwnerID, meta.Filename)
	m.mu.Lock()
	m.objects[key] = content
	m.mu.Unlock()
	return &documents.Reference{
		Key:         key,
		URL:         "https://docs.example/" + key,
		Name:        meta.Filename,
		ContentType: meta.ContentType,
		Size:        int64(len(content)),
	}, nil
}

func (m *memoryDocs) Resolve(ctx context.Context, key string) (*documents.Locator, error) {
	if !m.has(key) {
		return nil, documents.ErrDocumentNotFound
	}
	return &documents.Locator{URL: "https://docs.example/" + key}, nil
}

func (m *memoryDocs) Open(ctx context.Context, key string) (*documents.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, documents.ErrDocumentNotFound
	}
	return &documents.Object{Body: io.NopCloser(bytes.NewReader(b)), Size: int64(len(b))}, nil
}

func (m *memoryDocs) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryDocs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type countingCache struct {
	mu    sync.Mutex
	users map[string]*models.User
	hits  int
}

func (c *countingCache) Get(ctx context.Context, id string) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[id]; ok {
		c.hits++
		return u, nil
	}
	return nil, errors.New("miss")
}

func (c *countingCache) Set(ctx context.Context, user *models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[user.ID] = user
	return nil
}

type fixture struct {
	svc    *Service
	repo   *repository.Repository
	docs   *memoryDocs
	hub    *notify.Hub
	tokens *auth.Manager
	events *notify.Subscription
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.Open(context.Background(), repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	log := quietLogger()
	hub := notify.NewHub(32, log)
	events, err := hub.Subscribe(context.Background(), notify.TopicClaims)
	require.NoError(t, err)
	t.Cleanup(events.Close)

	docs := newMemoryDocs()
	tokens := auth.NewManager("test-secret", 24*time.Hour)
	return &fixture{
		svc:    NewService(repo, docs, hub, tokens, log),
		repo:   repo,
		docs:   docs,
		hub:    hub,
		tokens: tokens,
		events: events,
	}
}

func (f *fixture) register(t *testing.T, name string, role models.Role) *Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "password1",
		Role:     string(role),
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) submit(t *testing.T, patient *models.User, amount float64) *models.Claim {
	t.Helper()
	claim, err := f.svc.Submit(context.Background(), patient, SubmitInput{
		ClaimAmount: amount,
		Description: "X-ray",
		Filename:    "a.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	return claim
}

func (f *fixture) nextEvent(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev := <-f.events.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.Event{}
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	require.Error(t, err)
	return KindOf(err)
}

func amount(v float64) *float64 { return &v }

func str(s string) *string { return &s }

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.register(t, "Alice", models.RolePatient)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "alice@example.com", sess.User.Email)
	assert.Equal(t, models.RolePatient, sess.User.Role)
	_, err := ulid.ParseStrict(sess.User.ID)
	assert.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Dup", Email: "ALICE@example.com", Password: "password1", Role: "patient"})
	assert.Equal(t, KindValidation, kindOf(t, err))

	login, err := f.svc.Login(ctx, "alice@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = f.svc.Login(ctx, "alice@example.com", "wrong")
	assert.Equal(t, KindAuth, kindOf(t, err))
	_, err = f.svc.Login(ctx, "nobody@example.com", "password1")
	assert.Equal(t, KindAuth, kindOf(t, err))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{Email: "a@example.com", Password: "password1", Role: "patient"}},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "password1", Role: "patient"}},
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "123", Role: "patient"}},
		{"unknown role", RegisterInput{Name: "A", Email: "a@example.com", Password: "password1", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.in)
			assert.Equal(t, KindValidation, kindOf(t, err))
		})
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, "Ops", "ops@example.com", "abc", models.RoleInsurer)
	assert.Equal(t, KindValidation, kindOf(t, err))
	_, err = f.svc.CreateUser(ctx, "Ops", "ops", "secret123", models.RoleInsurer)
	assert.Equal(t, KindValidation, kindOf(t, err))
	_, err = f.svc.CreateUser(ctx, " ", "ops@example.com", "secret123", models.RoleInsurer)
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.repo.FindUserByEmail(ctx, "ops@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	user, err := f.svc.CreateUser(ctx, "Ops", "ops@example.com", "secret123", models.RoleInsurer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleInsurer, user.Role)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "Alice", models.RolePatient)

	user, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, user.ID)

	_, err = f.svc.Authenticate(ctx, "")
	assert.Equal(t, KindAuth, kindOf(t, err))
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, auth.ErrMalformedToken)

	expired, err := auth.NewManager("test-secret", -time.Hour).Issue(sess.User.ID)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, expired)
	assert.Equal(t, KindAuth, kindOf(t, err))
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	ghost, err := f.tokens.Issue(ulid.Make().String())
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, ghost)
	assert.Equal(t, KindAuth, kindOf(t, err))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthenticateUsesCache(t *testing.T) {
	f := newFixture(t)
	cache := &countingCache{users: map[string]*models.User{}}
	f.svc.WithUserCache(cache)
	sess := f.register(t, "Alice", models.RolePatient)

	_, err := f.svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)

	_, err = f.svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestRequireRole(t *testing.T) {
	insurer := &models.User{Role: models.RoleInsurer}
	assert.NoError(t, RequireRole(insurer, models.RoleInsurer))
	assert.Equal(t, KindForbidden, KindOf(RequireRole(insurer, models.RolePatient)))
	assert.Equal(t, KindAuth, KindOf(RequireRole(nil, models.RolePatient)))
}

func TestSubmitAndReadBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patient := f.register(t, "Alice", models.RolePatient).User

	claim := f.submit(t, patient, 250.00)
	assert.Equal(t, models.StatusPending, claim.Status)
	assert.Equal(t, "Alice", claim.Name)
	assert.Equal(t, "alice@example.com", claim.Email)
	assert.Nil(t, claim.ApprovedAmount)

	ev := f.nextEvent(t)
	assert.Equal(t, models.EventClaimCreated, ev.Type)
	assert.Equal(t, claim.ID, ev.Claim.ID)
	assert.Equal(t, patient.ID, ev.UserID)

	first, err := f.svc.GetClaim(ctx, patient, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, 250.00, first.ClaimAmount)
	assert.Equal(t, "X-ray", first.Description)

	loc, err := f.svc.ResolveDocument(ctx, patient, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentURL, loc.URL)

	second, err := f.svc.GetClaim(ctx, patient, claim.ID)
	require.NoError(t, err)
	assert.True(t, first.LastUpdated.Equal(second.LastUpdated))
}

func TestSubmitRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patient := f.register(t, "Alice", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User

	_, err := f.svc.Submit(ctx, insurer, SubmitInput{Description: "x", ClaimAmount: 1, Filename: "a.pdf", Content: []byte("x")})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.svc.Submit(ctx, patient, SubmitInput{Description: "x", ClaimAmount: -1, Filename: "a.pdf", Content: []byte("x")})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.Submit(ctx, patient, SubmitInput{Description: "x", ClaimAmount: 1})
	assert.Equal(t, KindValidation, kindOf(t, err))

	f.docs.failPut = true
	_, err = f.svc.Submit(ctx, patient, SubmitInput{Description: "x", ClaimAmount: 1, Filename: "a.pdf", Content: []byte("x")})
	assert.Equal(t, KindDependency, kindOf(t, err))
}

func TestReadAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	b := f.register(t, "Bob", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User

	claimA := f.submit(t, a, 100)
	f.submit(t, b, 50)

	_, err := f.svc.GetClaim(ctx, b, claimA.ID)
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.svc.GetClaim(ctx, insurer, claimA.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetClaim(ctx, a, "not-a-ulid")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.GetClaim(ctx, a, ulid.Make().String())
	assert.Equal(t, KindNotFound, kindOf(t, err))

	all, err := f.svc.ListClaims(ctx, insurer, models.ClaimFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListClaims(ctx, a, models.ClaimFilter{PatientID: b.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, claimA.ID, mine[0].ID)
}

func TestPatientUpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	b := f.register(t, "Bob", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User
	claim := f.submit(t, a, 100)
	f.nextEvent(t)

	updated, err := f.svc.UpdateClaim(ctx, a, claim.ID, UpdateInput{Description: str("MRI"), ClaimAmount: amount(120)})
	require.NoError(t, err)
	assert.Equal(t, "MRI", updated.Description)
	assert.Equal(t, 120.0, updated.ClaimAmount)
	assert.False(t, updated.LastUpdated.Before(claim.LastUpdated))
	assert.Equal(t, models.EventClaimUpdated, f.nextEvent(t).Type)

	_, err = f.svc.UpdateClaim(ctx, b, claim.ID, UpdateInput{Description: str("mine now")})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.svc.UpdateClaim(ctx, a, claim.ID, UpdateInput{Status: str("approved")})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.svc.UpdateClaim(ctx, a, claim.ID, UpdateInput{ClaimAmount: amount(-5)})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.UpdateClaim(ctx, insurer, claim.ID, UpdateInput{Description: str("edited by insurer")})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusRejected})
	require.NoError(t, err)

	_, err = f.svc.UpdateClaim(ctx, a, claim.ID, UpdateInput{Description: str("too late")})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestInsurerPutWithStatusDecides(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "Alice", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User
	claim := f.submit(t, a, 100)

	decided, err := f.svc.UpdateClaim(context.Background(), insurer, claim.ID, UpdateInput{
		Status:          str("approved"),
		ApprovedAmount:  amount(90),
		InsurerComments: str("ok"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, decided.Status)
	assert.Equal(t, 90.0, *decided.ApprovedAmount)
	assert.Equal(t, "ok", decided.InsurerComments)
}

func TestDecideRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User
	claim := f.submit(t, a, 100)

	_, err := f.svc.DecideClaim(ctx, a, claim.ID, models.Decision{Status: models.StatusApproved, ApprovedAmount: amount(1)})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusApproved})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusRejected, ApprovedAmount: amount(1)})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusPending})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.DecideClaim(ctx, insurer, ulid.Make().String(), models.Decision{Status: models.StatusApproved, ApprovedAmount: amount(1)})
	assert.Equal(t, KindNotFound, kindOf(t, err))

	approved, err := f.svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusApproved, ApprovedAmount: amount(80)})
	require.NoError(t, err)
	assert.Equal(t, 80.0, *approved.ApprovedAmount)

	_, err = f.svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusRejected})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	b := f.register(t, "Bob", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User

	claim := f.submit(t, a, 100)
	f.nextEvent(t)

	assert.Equal(t, KindForbidden, kindOf(t, f.svc.DeleteClaim(ctx, insurer, claim.ID)))
	assert.Equal(t, KindForbidden, kindOf(t, f.svc.DeleteClaim(ctx, b, claim.ID)))

	require.NoError(t, f.svc.DeleteClaim(ctx, a, claim.ID))
	ev := f.nextEvent(t)
	assert.Equal(t, models.EventClaimDeleted, ev.Type)
	assert.Equal(t, claim.ID, ev.ClaimID)
	assert.Nil(t, ev.Claim)
	assert.Eventually(t, func() bool { return !f.docs.has(claim.DocumentKey) }, time.Second, 10*time.Millisecond)

	assert.Equal(t, KindNotFound, kindOf(t, f.svc.DeleteClaim(ctx, a, claim.ID)))

	decided := f.submit(t, a, 100)
	_, err := f.svc.DecideClaim(ctx, insurer, decided.ID, models.Decision{Status: models.StatusApproved, ApprovedAmount: amount(80)})
	require.NoError(t, err)
	assert.Equal(t, KindValidation, kindOf(t, f.svc.DeleteClaim(ctx, a, decided.ID)))
}

func TestApprovedAmountOnlyWhenApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User

	approved := f.submit(t, a, 100)
	rejected := f.submit(t, a, 100)
	f.submit(t, a, 100)

	_, err := f.svc.DecideClaim(ctx, insurer, approved.ID, models.Decision{Status: models.StatusApproved, ApprovedAmount: amount(0)})
	require.NoError(t, err)
	_, err = f.svc.DecideClaim(ctx, insurer, rejected.ID, models.Decision{Status: models.StatusRejected, InsurerComments: "missing receipt"})
	require.NoError(t, err)

	all, err := f.svc.ListClaims(ctx, insurer, models.ClaimFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, c := range all {
		assert.Contains(t, []models.ClaimStatus{models.StatusPending, models.StatusApproved, models.StatusRejected}, c.Status)
		assert.Equal(t, c.Status == models.StatusApproved, c.ApprovedAmount != nil, "claim %s", c.ID)
	}
}

func TestDocumentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	claim := f.submit(t, a, 100)

	obj, err := f.svc.OpenDocument(ctx, a, claim.ID)
	require.NoError(t, err)
	obj.Body.Close()
	assert.Equal(t, "a.pdf", obj.Name)

	require.NoError(t, f.docs.Delete(ctx, claim.DocumentKey))
	_, err = f.svc.ResolveDocument(ctx, a, claim.ID)
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func TestEmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "Alice", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User

	direct, err := f.hub.Subscribe(ctx, notify.UserTopic(a.ID))
	require.NoError(t, err)
	defer direct.Close()

	assert.Equal(t, KindForbidden, kindOf(t, f.svc.Emit(ctx, a, EmitInput{Event: "ping"})))
	assert.Equal(t, KindValidation, kindOf(t, f.svc.Emit(ctx, insurer, EmitInput{})))

	require.NoError(t, f.svc.Emit(ctx, insurer, EmitInput{Event: "reviewStarted", Data: map[string]string{"note": "hi"}, UserID: a.ID}))
	select {
	case ev := <-direct.Events():
		assert.Equal(t, "reviewStarted", ev.Type)
		assert.Equal(t, a.ID, ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("no direct event")
	}

	require.NoError(t, f.svc.Emit(ctx, insurer, EmitInput{Event: "maintenance"}))
	assert.Equal(t, "maintenance", f.nextEvent(t).Type)
}

type failingBus struct {
	mu       sync.Mutex
	attempts []string
}

func (b *failingBus) Publish(ctx context.Context, topic string, ev models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = append(b.attempts, ev.Type)
	return errors.New("nats: connection closed")
}

func (b *failingBus) Subscribe(ctx context.Context, topic string) (*notify.Subscription, error) {
	return nil, errors.New("nats: connection closed")
}

func (b *failingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.attempts)
}

func TestMutationsSurvivePublishFailure(t *testing.T) {
	f := newFixture(t)
	bus := &failingBus{}
	svc := NewService(f.repo, f.docs, bus, f.tokens, quietLogger())
	ctx := context.Background()

	patient := f.register(t, "Alice", models.RolePatient).User
	insurer := f.register(t, "Ivy", models.RoleInsurer).User

	claim, err := svc.Submit(ctx, patient, SubmitInput{
		ClaimAmount: 120,
		Description: "X-ray",
		Filename:    "a.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	stored, err := f.repo.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	desc := "Follow-up X-ray"
	_, err = svc.UpdateClaim(ctx, patient, claim.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)
	stored, err = f.repo.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, stored.Description)

	_, err = svc.DecideClaim(ctx, insurer, claim.ID, models.Decision{Status: models.StatusApproved, ApprovedAmount: amount(100)})
	require.NoError(t, err)
	stored, err = f.repo.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)

	pending, err := svc.Submit(ctx, patient, SubmitInput{
		ClaimAmount: 30,
		Description: "Bandage",
		Filename:    "b.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteClaim(ctx, patient, pending.ID))
	_, err = f.repo.GetClaim(ctx, pending.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Eventually(t, func() bool { return bus.count() == 5 }, time.Second, 10*time.Millisecond)
}
