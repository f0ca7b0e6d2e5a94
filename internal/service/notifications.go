package service

import (
	"context"
	"strings"

	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/notify"
)

// EmitInput is an explicit notification sent by an insurer
type EmitInput struct {
	Event  string `json:"event"`
	Data   any    `json:"data"`
	UserID string `json:"userId"`
}

// Emit publishes a free-form event to everyone, or to one user when UserID is set
func (s *Service) Emit(ctx context.Context, user *models.User, in EmitInput) error {
	if err := RequireRole(user, models.RoleInsurer); err != nil {
		return err
	}

	eventType := strings.TrimSpace(in.Event)
	if eventType == "" {
		return Validation("Event name is required")
	}

	topic := notify.TopicClaims
	if in.UserID != "" {
		topic = notify.UserTopic(in.UserID)
	}

	ev := models.Event{
		Type:      eventType,
		UserID:    in.UserID,
		Data:      in.Data,
		Timestamp: s.timestamp(),
	}
	if err := s.bus.Publish(ctx, topic, ev); err != nil {
		return Dependency("Failed to emit event", err)
	}
	return nil
}
