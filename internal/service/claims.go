package service

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/documents"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/notify"
	"github.com/Dan9191/claims-service/internal/repository"
)

// SubmitInput is a new claim with its document already read into memory
type SubmitInput struct {
	Name        string
	Email       string
	ClaimAmount float64
	Description string
	Filename    string
	ContentType string
	Content     []byte
}

// UpdateInput is the body of PUT /claims/{id}. Patients edit description and
// amount; a status turns the request into an insurer decision.
type UpdateInput struct {
	Description     *string  `json:"description"`
	ClaimAmount     *float64 `json:"claimAmount"`
	Status          *string  `json:"status"`
	ApprovedAmount  *float64 `json:"approvedAmount"`
	InsurerComments *string  `json:"insurerComments"`
}

// Submit stores the document and creates a pending claim owned by user
func (s *Service) Submit(ctx context.Context, user *models.User, in SubmitInput) (*models.Claim, error) {
	if err := RequireRole(user, models.RolePatient); err != nil {
		return nil, Forbidden("Only patients can submit claims")
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, Validation("Description is required")
	}
	if in.ClaimAmount < 0 {
		return nil, Validation("Claim amount must not be negative")
	}
	if len(in.Content) == 0 || in.Filename == "" {
		return nil, Validation("A supporting document is required")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = user.Name
	}
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		email = user.Email
	}

	ref, err := s.docs.Store(ctx, in.Content, documents.Metadata{
		Filename:    in.Filename,
		ContentType: in.ContentType,
		OwnerID:     user.ID,
	})
	if err != nil {
		return nil, Dependency("Failed to upload document", err)
	}

	now := s.timestamp()
	claim := &models.Claim{
		ID:             ulid.Make().String(),
		PatientID:      user.ID,
		Name:           name,
		Email:          email,
		ClaimAmount:    in.ClaimAmount,
		Description:    description,
		DocumentKey:    ref.Key,
		DocumentURL:    ref.URL,
		DocumentName:   ref.Name,
		DocumentType:   ref.ContentType,
		Status:         models.StatusPending,
		SubmissionDate: now,
		LastUpdated:    now,
	}

	if err := s.repo.CreateClaim(ctx, claim); err != nil {
		s.discardDocument(ref.Key)
		return nil, Dependency("Failed to submit claim", err)
	}

	s.log.WithFields(logrus.Fields{"claim_id": claim.ID, "user_id": user.ID}).Info("Claim submitted")
	s.publish(notify.TopicClaims, claimEvent(models.EventClaimCreated, claim))
	return claim, nil
}

// ListClaims returns every claim for insurers and only their own for patients
func (s *Service) ListClaims(ctx context.Context, user *models.User, filter models.ClaimFilter) ([]*models.Claim, error) {
	switch user.Role {
	case models.RoleInsurer:
	case models.RolePatient:
		filter.PatientID = user.ID
	default:
		return nil, Forbidden("Access denied")
	}

	claims, err := s.repo.ListClaims(ctx, filter)
	if err != nil {
		return nil, Dependency("Failed to list claims", err)
	}
	return claims, nil
}

// GetClaim returns one claim. Patients may only read their own.
func (s *Service) GetClaim(ctx context.Context, user *models.User, id string) (*models.Claim, error) {
	claim, err := s.loadClaim(ctx, id)
	if err != nil {
		return nil, err
	}

	switch user.Role {
	case models.RoleInsurer:
		return claim, nil
	case models.RolePatient:
		if !claim.OwnedBy(user.ID) {
			return nil, Forbidden("Not authorized to view this claim")
		}
		return claim, nil
	default:
		return nil, Forbidden("Access denied")
	}
}

// UpdateClaim applies a PUT. Insurers carrying a status are routed to
// DecideClaim; patients may edit their own pending claims.
func (s *Service) UpdateClaim(ctx context.Context, user *models.User, id string, in UpdateInput) (*models.Claim, error) {
	switch user.Role {
	case models.RoleInsurer:
		if in.Status == nil {
			return nil, Forbidden("Insurers can only change the status of a claim")
		}
		d := models.Decision{Status: models.ClaimStatus(*in.Status), ApprovedAmount: in.ApprovedAmount}
		if in.InsurerComments != nil {
			d.InsurerComments = *in.InsurerComments
		}
		return s.DecideClaim(ctx, user, id, d)
	case models.RolePatient:
	default:
		return nil, Forbidden("Access denied")
	}

	if in.Status != nil || in.ApprovedAmount != nil || in.InsurerComments != nil {
		return nil, Forbidden("Patients cannot change the status of a claim")
	}

	claim, err := s.loadClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claim.OwnedBy(user.ID) {
		return nil, Forbidden("Not authorized to update this claim")
	}
	if claim.Status != models.StatusPending {
		return nil, Validation("Only pending claims can be updated")
	}

	if in.Description == nil && in.ClaimAmount == nil {
		return nil, Validation("Nothing to update")
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if description == "" {
			return nil, Validation("Description is required")
		}
		claim.Description = description
	}
	if in.ClaimAmount != nil {
		if *in.ClaimAmount < 0 {
			return nil, Validation("Claim amount must not be negative")
		}
		claim.ClaimAmount = *in.ClaimAmount
	}
	claim.LastUpdated = s.timestamp()

	if err := s.repo.UpdateClaim(ctx, claim, models.StatusPending); err != nil {
		return nil, s.writeError(err, "Only pending claims can be updated", "Failed to update claim")
	}

	s.log.WithFields(logrus.Fields{"claim_id": claim.ID, "user_id": user.ID}).Info("Claim updated")
	s.publish(notify.TopicClaims, claimEvent(models.EventClaimUpdated, claim))
	return claim, nil
}

// DecideClaim records an insurer's verdict on a pending claim
func (s *Service) DecideClaim(ctx context.Context, user *models.User, id string, d models.Decision) (*models.Claim, error) {
	if err := RequireRole(user, models.RoleInsurer); err != nil {
		return nil, Forbidden("Only insurers can change the status of a claim")
	}

	status, err := models.ParseClaimStatus(string(d.Status))
	if err != nil || !status.Terminal() {
		return nil, Validation("Status must be approved or rejected")
	}
	switch status {
	case models.StatusApproved:
		if d.ApprovedAmount == nil {
			return nil, Validation("Approved amount is required when approving a claim")
		}
		if *d.ApprovedAmount < 0 {
			return nil, Validation("Approved amount must not be negative")
		}
	case models.StatusRejected:
		if d.ApprovedAmount != nil {
			return nil, Validation("Approved amount is only allowed when approving a claim")
		}
	}

	claim, err := s.loadClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claim.Status.CanTransition(status) {
		return nil, Validation("Claim has already been %s", claim.Status)
	}

	claim.Status = status
	if status == models.StatusApproved {
		amount := *d.ApprovedAmount
		claim.ApprovedAmount = &amount
	}
	claim.InsurerComments = strings.TrimSpace(d.InsurerComments)
	claim.LastUpdated = s.timestamp()

	if err := s.repo.UpdateClaim(ctx, claim, models.StatusPending); err != nil {
		return nil, s.writeError(err, "Claim has already been decided", "Failed to update claim")
	}

	s.log.WithFields(logrus.Fields{"claim_id": claim.ID, "user_id": user.ID, "status": claim.Status}).Info("Claim decided")
	s.publish(notify.TopicClaims, claimEvent(models.EventClaimUpdated, claim))
	return claim, nil
}

// DeleteClaim removes a patient's own pending claim and its document
func (s *Service) DeleteClaim(ctx context.Context, user *models.User, id string) error {
	if user.Role != models.RolePatient {
		return Forbidden("Only the submitting patient can delete a claim")
	}

	claim, err := s.loadClaim(ctx, id)
	if err != nil {
		return err
	}
	if !claim.OwnedBy(user.ID) {
		return Forbidden("Not authorized to delete this claim")
	}
	if claim.Status != models.StatusPending {
		return Validation("Only pending claims can be deleted")
	}

	if err := s.repo.DeleteClaim(ctx, claim.ID, models.StatusPending); err != nil {
		return s.writeError(err, "Only pending claims can be deleted", "Failed to delete claim")
	}
	if claim.HasDocument() {
		s.discardDocument(claim.DocumentKey)
	}

	s.log.WithFields(logrus.Fields{"claim_id": claim.ID, "user_id": user.ID}).Info("Claim deleted")
	s.publish(notify.TopicClaims, models.Event{
		Type:    models.EventClaimDeleted,
		ClaimID: claim.ID,
		UserID:  claim.PatientID,
	})
	return nil
}

// ResolveDocument returns a fetchable locator for the claim's document
func (s *Service) ResolveDocument(ctx context.Context, user *models.User, id string) (*documents.Locator, error) {
	claim, err := s.documentClaim(ctx, user, id)
	if err != nil {
		return nil, err
	}

	loc, err := s.docs.Resolve(ctx, claim.DocumentKey)
	if err != nil {
		return nil, documentError(err)
	}
	return loc, nil
}

// OpenDocument streams the claim's document. The caller closes Body.
func (s *Service) OpenDocument(ctx context.Context, user *models.User, id string) (*documents.Object, error) {
	claim, err := s.documentClaim(ctx, user, id)
	if err != nil {
		return nil, err
	}

	obj, err := s.docs.Open(ctx, claim.DocumentKey)
	if err != nil {
		return nil, documentError(err)
	}
	if obj.Name == "" {
		obj.Name = claim.DocumentName
	}
	return obj, nil
}

func (s *Service) documentClaim(ctx context.Context, user *models.User, id string) (*models.Claim, error) {
	claim, err := s.GetClaim(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if !claim.HasDocument() {
		return nil, NotFound("No document attached to this claim")
	}
	return claim, nil
}

func documentError(err error) error {
	if errors.Is(err, documents.ErrDocumentNotFound) {
		return NotFound("Document not found")
	}
	return Dependency("Failed to retrieve document", err)
}

func (s *Service) loadClaim(ctx context.Context, id string) (*models.Claim, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, Validation("Invalid claim id")
	}
	claim, err := s.repo.GetClaim(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Claim not found")
	}
	if err != nil {
		return nil, Dependency("Failed to load claim", err)
	}
	return claim, nil
}

// writeError maps conditional write failures. A stale write means another
// request moved the claim out of pending first.
func (s *Service) writeError(err error, staleMessage, failMessage string) error {
	switch {
	case errors.Is(err, repository.ErrStale):
		return Validation(staleMessage)
	case errors.Is(err, repository.ErrNotFound):
		return NotFound("Claim not found")
	default:
		return Dependency(failMessage, err)
	}
}

// discardDocument deletes an object in the background, logging failures
func (s *Service) discardDocument(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.docs.Delete(ctx, key); err != nil {
			s.log.WithField("key", key).Warnf("Failed to delete document: %v", err)
		}
	}()
}

func claimEvent(typ string, c *models.Claim) models.Event {
	snapshot := *c
	return models.Event{
		Type:    typ,
		Claim:   &snapshot,
		ClaimID: c.ID,
		UserID:  c.PatientID,
	}
}
