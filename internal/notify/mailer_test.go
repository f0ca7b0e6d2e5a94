package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/claims-service/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendDecision(ctx context.Context, claim *models.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, claim.ID)
	return nil
}

func (r *recordingSender) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestDecisionMailerSendsOnTerminalUpdates(t *testing.T) {
	hub := NewHub(8, testLogger())
	sender := &recordingSender{}
	m := NewDecisionMailer(hub, sender, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool { return hub.Subscribers(TopicClaims) == 1 }, time.Second, 10*time.Millisecond)

	publish := func(typ string, c *models.Claim) {
		require.NoError(t, hub.Publish(context.Background(), TopicClaims, models.Event{Type: typ, Claim: c}))
	}
	publish(models.EventClaimCreated, &models.Claim{ID: "new", Email: "a@example.com", Status: models.StatusPending})
	publish(models.EventClaimUpdated, &models.Claim{ID: "edited", Email: "a@example.com", Status: models.StatusPending})
	publish(models.EventClaimUpdated, &models.Claim{ID: "approved", Email: "a@example.com", Status: models.StatusApproved})
	publish(models.EventClaimUpdated, &models.Claim{ID: "rejected", Email: "a@example.com", Status: models.StatusRejected})
	publish(models.EventClaimUpdated, &models.Claim{ID: "no-email", Status: models.StatusApproved})

	assert.Eventually(t, func() bool { return len(sender.ids()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"approved", "rejected"}, sender.ids())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("mailer did not stop")
	}
}

func TestDecisionMailersShareOneQueue(t *testing.T) {
	hub := NewHub(8, testLogger())
	sender := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 2; i++ {
		m := NewDecisionMailer(hub, sender, testLogger())
		go func() { _ = m.Run(ctx) }()
	}
	require.Eventually(t, func() bool { return hub.Subscribers(TopicClaims) == 2 }, time.Second, 10*time.Millisecond)

	for _, id := range []string{"c1", "c2", "c3"} {
		ev := models.Event{Type: models.EventClaimUpdated, Claim: &models.Claim{ID: id, Email: "a@example.com", Status: models.StatusApproved}}
		require.NoError(t, hub.Publish(context.Background(), TopicClaims, ev))
	}

	require.Eventually(t, func() bool { return len(sender.ids()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(sender.ids()) > 3 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, sender.ids())
}
