package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/Dan9191/claims-service/internal/models"
)

var claimColumns = []string{
	"id", "patient_id", "name", "email", "claim_amount", "description",
	"document_key", "document_url", "document_name", "document_type",
	"status", "approved_amount", "insurer_comments", "submission_date", "last_updated",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	c := &models.Claim{}
	var status string
	var approved sql.NullFloat64
	err := row.Scan(&c.ID, &c.PatientID, &c.Name, &c.Email, &c.ClaimAmount, &c.Description,
		&c.DocumentKey, &c.DocumentURL, &c.DocumentName, &c.DocumentType,
		&status, &approved, &c.InsurerComments, &c.SubmissionDate, &c.LastUpdated)
	if err != nil {
		return nil, err
	}
	c.Status = models.ClaimStatus(status)
	if approved.Valid {
		v := approved.Float64
		c.ApprovedAmount = &v
	}
	c.SubmissionDate = c.SubmissionDate.UTC()
	c.LastUpdated = c.LastUpdated.UTC()
	return c, nil
}

func nullableAmount(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// CreateClaim inserts a new claim
func (r *Repository) CreateClaim(ctx context.Context, c *models.Claim) error {
	query, args, err := r.builder.
		Insert("claims").
		Columns(claimColumns...).
		Values(c.ID, c.PatientID, c.Name, c.Email, c.ClaimAmount, c.Description,
			c.DocumentKey, c.DocumentURL, c.DocumentName, c.DocumentType,
			string(c.Status), nullableAmount(c.ApprovedAmount), c.InsurerComments,
			c.SubmissionDate, c.LastUpdated).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim by id
func (r *Repository) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	query, args, err := r.builder.
		Select(claimColumns...).
		From("claims").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	c, err := scanClaim(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return c, nil
}

// ListClaims returns claims matching filter, newest submission first
func (r *Repository) ListClaims(ctx context.Context, filter models.ClaimFilter) ([]*models.Claim, error) {
	q := r.builder.
		Select(claimColumns...).
		From("claims").
		OrderBy("submission_date DESC", "id DESC")

	if filter.PatientID != "" {
		q = q.Where(squirrel.Eq{"patient_id": filter.PatientID})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"submission_date": filter.From.UTC()})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"submission_date": filter.To.UTC()})
	}
	if filter.MinAmount != nil {
		q = q.Where(squirrel.GtOrEq{"claim_amount": *filter.MinAmount})
	}
	if filter.MaxAmount != nil {
		q = q.Where(squirrel.LtOrEq{"claim_amount": *filter.MaxAmount})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := make([]*models.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

// UpdateClaim writes the mutable fields of c, provided the stored status
// still equals expected. Returns ErrStale otherwise.
func (r *Repository) UpdateClaim(ctx context.Context, c *models.Claim, expected models.ClaimStatus) error {
	query, args, err := r.builder.
		Update("claims").
		Set("claim_amount", c.ClaimAmount).
		Set("description", c.Description).
		Set("status", string(c.Status)).
		Set("approved_amount", nullableAmount(c.ApprovedAmount)).
		Set("insurer_comments", c.InsurerComments).
		Set("last_updated", c.LastUpdated).
		Where(squirrel.Eq{"id": c.ID, "status": string(expected)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	return r.checkAffected(ctx, res, c.ID)
}

// DeleteClaim removes a claim, provided its stored status equals expected
func (r *Repository) DeleteClaim(ctx context.Context, id string, expected models.ClaimStatus) error {
	query, args, err := r.builder.
		Delete("claims").
		Where(squirrel.Eq{"id": id, "status": string(expected)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

// DocumentReferenced reports whether any claim points at the object key
func (r *Repository) DocumentReferenced(ctx context.Context, key string) (bool, error) {
	query, args, err := r.builder.
		Select("COUNT(*)").
		From("claims").
		Where(squirrel.Eq{"document_key": key}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count document references: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetClaim(ctx, id); err != nil {
		return err
	}
	return ErrStale
}
