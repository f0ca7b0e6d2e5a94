// Package jobs runs periodic maintenance in the API process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/documents"
)

// DocumentPrefix is where claim attachments live in the bucket
const DocumentPrefix = "claims/"

const sweepTimeout = 5 * time.Minute

// DocumentLister lists and removes stored objects
type DocumentLister interface {
	List(ctx context.Context, prefix string) ([]documents.StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// ReferenceChecker reports whether any claim still points at a key
type ReferenceChecker interface {
	DocumentReferenced(ctx context.Context, key string) (bool, error)
}

// Sweeper deletes uploaded documents that no claim references, typically
// left behind when a submission failed after the upload.
type Sweeper struct {
	docs  DocumentLister
	refs  ReferenceChecker
	grace time.Duration
	log   *logrus.Logger
	now   func() time.Time
}

// NewSweeper initializes an orphan document sweeper. Objects younger than
// grace are never removed, so in-flight submissions keep their upload.
func NewSweeper(docs DocumentLister, refs ReferenceChecker, grace time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{docs: docs, refs: refs, grace: grace, log: log, now: time.Now}
}

// Sweep removes orphaned documents and returns how many were deleted
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	objects, err := s.docs.List(ctx, DocumentPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	cutoff := s.now().Add(-s.grace)
	removed := 0
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		referenced, err := s.refs.DocumentReferenced(ctx, obj.Key)
		if err != nil {
			return removed, fmt.Errorf("failed to check document %s: %w", obj.Key, err)
		}
		if referenced {
			continue
		}
		if err := s.docs.Delete(ctx, obj.Key); err != nil {
			s.log.WithField("key", obj.Key).Warnf("Failed to delete orphaned document: %v", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Schedule runs Sweep on a cron spec such as "@every 1h". The caller stops
// the returned scheduler on shutdown.
func (s *Sweeper) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		removed, err := s.Sweep(ctx)
		if err != nil {
			s.log.Errorf("Document sweep failed: %v", err)
			return
		}
		s.log.WithField("removed", removed).Info("Document sweep finished")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule document sweep: %w", err)
	}
	c.Start()
	return c, nil
}
