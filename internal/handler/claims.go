package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Dan9191/claims-service/internal/config"
	"github.com/Dan9191/claims-service/internal/export"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/service"
	"github.com/Dan9191/claims-service/internal/utils"
)

// multipartOverhead is the slack allowed on top of the file size for the
// other form fields and part headers
const multipartOverhead = 64 << 10

const dateOnly = "2006-01-02"

// ListClaims returns claims visible to the caller, filtered by query parameters
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	claims, err := h.svc.ListClaims(r.Context(), currentUser(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// MyClaims returns the calling patient's claims
func (h *Handler) MyClaims(w http.ResponseWriter, r *http.Request) {
	h.ListClaims(w, r)
}

// ExportClaims renders the filtered listing as an XML report
func (h *Handler) ExportClaims(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	claims, err := h.svc.ListClaims(r.Context(), currentUser(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if err := export.Write(&buf, claims, now); err != nil {
		h.writeError(w, r, service.Dependency("Failed to export claims", err))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": "claims-" + now.UTC().Format(dateOnly) + ".xml",
	}))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// CreateClaim accepts a multipart submission with the supporting document
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	limit := h.opts.MaxUploadBytes
	tooLarge := fmt.Sprintf("File too large. Maximum size is %s", formatSize(limit))

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			writeMessage(w, http.StatusBadRequest, tooLarge)
			return
		}
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	amount, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("claimAmount")), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		writeMessage(w, http.StatusBadRequest, "Claim amount must be a number")
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "A supporting document is required")
		return
	}
	defer file.Close()
	if header.Size > limit {
		writeMessage(w, http.StatusBadRequest, tooLarge)
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read document")
		return
	}
	if int64(len(content)) > limit {
		writeMessage(w, http.StatusBadRequest, tooLarge)
		return
	}

	claim, err := h.svc.Submit(r.Context(), currentUser(r), service.SubmitInput{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		ClaimAmount: amount,
		Description: r.FormValue("description"),
		Filename:    header.Filename,
		ContentType: utils.DetectContentType(header.Header.Get("Content-Type"), header.Filename, content),
		Content:     content,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

// GetClaim returns a single claim
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.svc.GetClaim(r.Context(), currentUser(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// UpdateClaim edits a pending claim, or records a decision when an insurer sends a status
func (h *Handler) UpdateClaim(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	claim, err := h.svc.UpdateClaim(r.Context(), currentUser(r), mux.Vars(r)["id"], in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// UpdateStatus records an insurer decision
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var d models.Decision
	if !decodeJSON(w, r, &d) {
		return
	}
	claim, err := h.svc.DecideClaim(r.Context(), currentUser(r), mux.Vars(r)["id"], d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// DeleteClaim removes a pending claim
func (h *Handler) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteClaim(r.Context(), currentUser(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Claim deleted successfully")
}

// Document redirects to the stored document, or streams it in proxy mode
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.opts.DocumentMode != config.DocumentProxy {
		loc, err := h.svc.ResolveDocument(r.Context(), currentUser(r), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		http.Redirect(w, r, loc.URL, http.StatusFound)
		return
	}

	obj, err := h.svc.OpenDocument(r.Context(), currentUser(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	// Uploaded bytes are served from the API origin and must not run as a page
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "sandbox")
	if obj.Name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": obj.Name}))
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.log.WithField("claim_id", id).Warnf("Failed to stream document: %v", err)
	}
}

// parseFilter reads status, startDate, endDate, minAmount and maxAmount.
// A date-only endDate includes the whole day.
func parseFilter(q url.Values) (models.ClaimFilter, error) {
	var f models.ClaimFilter

	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status, err := models.ParseClaimStatus(s)
		if err != nil {
			return f, service.Validation("Invalid status %q", s)
		}
		f.Status = status
	}
	if s := strings.TrimSpace(q.Get("startDate")); s != "" {
		t, _, err := parseDate(s)
		if err != nil {
			return f, service.Validation("Invalid startDate")
		}
		f.From = &t
	}
	if s := strings.TrimSpace(q.Get("endDate")); s != "" {
		t, dayOnly, err := parseDate(s)
		if err != nil {
			return f, service.Validation("Invalid endDate")
		}
		if dayOnly {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		f.To = &t
	}
	if s := strings.TrimSpace(q.Get("minAmount")); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return f, service.Validation("Invalid minAmount")
		}
		f.MinAmount = &v
	}
	if s := strings.TrimSpace(q.Get("maxAmount")); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return f, service.Validation("Invalid maxAmount")
		}
		f.MaxAmount = &v
	}
	return f, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func formatSize(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
