package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/auth"
	"github.com/Dan9191/claims-service/internal/documents"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/notify"
)

// Store persists users and claims
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)

	CreateClaim(ctx context.Context, c *models.Claim) error
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	ListClaims(ctx context.Context, filter models.ClaimFilter) ([]*models.Claim, error)
	UpdateClaim(ctx context.Context, c *models.Claim, expected models.ClaimStatus) error
	DeleteClaim(ctx context.Context, id string, expected models.ClaimStatus) error
}

// DocumentStore keeps claim attachments
type DocumentStore interface {
	Store(ctx context.Context, content []byte, meta documents.Metadata) (*documents.Reference, error)
	Resolve(ctx context.Context, key string) (*documents.Locator, error)
	Open(ctx context.Context, key string) (*documents.Object, error)
	Delete(ctx context.Context, key string) error
}

// UserCache is an optional lookaside cache for Authenticate
type UserCache interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Set(ctx context.Context, user *models.User) error
}

const publishTimeout = 5 * time.Second

// Service handles business logic
type Service struct {
	repo   Store
	docs   DocumentStore
	bus    notify.Bus
	tokens *auth.Manager
	cache  UserCache
	log    *logrus.Logger
	now    func() time.Time
}

// NewService initializes a new service
func NewService(repo Store, docs DocumentStore, bus notify.Bus, tokens *auth.Manager, log *logrus.Logger) *Service {
	return &Service{
		repo:   repo,
		docs:   docs,
		bus:    bus,
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
}

// WithUserCache enables the user lookaside cache
func (s *Service) WithUserCache(c UserCache) *Service {
	s.cache = c
	return s
}

// timestamp returns the current time in the persisted precision
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// publish sends ev in the background. Failures are logged and never reach the caller.
func (s *Service) publish(topic string, ev models.Event) {
	if s.bus == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.timestamp()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.bus.Publish(ctx, topic, ev); err != nil {
			s.log.WithFields(logrus.Fields{"topic": topic, "event": ev.Type}).Warnf("Failed to publish notification: %v", err)
		}
	}()
}
