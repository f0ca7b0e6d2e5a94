// Package export renders claim listings as XML reports for insurers.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/Dan9191/claims-service/internal/models"
)

// ContentType is the media type of the report
const ContentType = "application/xml; charset=utf-8"

// Summary aggregates a listing by status
type Summary struct {
	Count         int
	TotalClaimed  float64
	TotalApproved float64
	ByStatus      map[models.ClaimStatus]int
}

// Summarize totals claims. Approved amounts count only for approved claims.
func Summarize(claims []*models.Claim) Summary {
	s := Summary{ByStatus: map[models.ClaimStatus]int{
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusRejected: 0,
	}}
	for _, c := range claims {
		s.Count++
		s.TotalClaimed += c.ClaimAmount
		s.ByStatus[c.Status]++
		if c.Status == models.StatusApproved && c.ApprovedAmount != nil {
			s.TotalApproved += *c.ApprovedAmount
		}
	}
	return s
}

// Build creates the report document
func Build(claims []*models.Claim, generatedAt time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("ClaimsReport")
	root.CreateAttr("generatedAt", generatedAt.UTC().Format(time.RFC3339))

	sum := Summarize(claims)
	summary := root.CreateElement("Summary")
	summary.CreateAttr("count", strconv.Itoa(sum.Count))
	summary.CreateAttr("totalClaimed", formatAmount(sum.TotalClaimed))
	summary.CreateAttr("totalApproved", formatAmount(sum.TotalApproved))
	for _, st := range []models.ClaimStatus{models.StatusPending, models.StatusApproved, models.StatusRejected} {
		e := summary.CreateElement("Status")
		e.CreateAttr("name", string(st))
		e.CreateAttr("count", strconv.Itoa(sum.ByStatus[st]))
	}

	list := root.CreateElement("Claims")
	for _, c := range claims {
		e := list.CreateElement("Claim")
		e.CreateAttr("id", c.ID)
		e.CreateAttr("status", string(c.Status))
		e.CreateElement("Patient").SetText(c.PatientID)
		e.CreateElement("Name").SetText(c.Name)
		e.CreateElement("Email").SetText(c.Email)
		e.CreateElement("ClaimAmount").SetText(formatAmount(c.ClaimAmount))
		if c.ApprovedAmount != nil {
			e.CreateElement("ApprovedAmount").SetText(formatAmount(*c.ApprovedAmount))
		}
		e.CreateElement("Description").SetText(c.Description)
		if c.InsurerComments != "" {
			e.CreateElement("InsurerComments").SetText(c.InsurerComments)
		}
		if c.DocumentName != "" {
			e.CreateElement("Document").SetText(c.DocumentName)
		}
		e.CreateElement("SubmissionDate").SetText(c.SubmissionDate.UTC().Format(time.RFC3339))
		e.CreateElement("LastUpdated").SetText(c.LastUpdated.UTC().Format(time.RFC3339))
	}

	doc.Indent(2)
	return doc
}

// Write renders the report for claims to w
func Write(w io.Writer, claims []*models.Claim, generatedAt time.Time) error {
	if _, err := Build(claims, generatedAt).WriteTo(w); err != nil {
		return fmt.Errorf("failed to write claims report: %w", err)
	}
	return nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
