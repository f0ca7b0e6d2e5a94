package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/config"
	"github.com/Dan9191/claims-service/internal/middleware"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/service"
)

// Options tunes request handling
type Options struct {
	Version        string
	DocumentMode   string
	MaxUploadBytes int64
}

type Handler struct {
	svc  *service.Service
	opts Options
	log  *logrus.Logger
	now  func() time.Time
}

// NewHandler initializes HTTP handlers over svc
func NewHandler(svc *service.Service, opts Options, log *logrus.Logger) *Handler {
	if opts.DocumentMode == "" {
		opts.DocumentMode = config.DocumentRedirect
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	return &Handler{svc: svc, opts: opts, log: log, now: time.Now}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"message":   "Server is running",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   h.opts.Version,
	})
}

// currentUser returns the user set by the auth middleware
func currentUser(r *http.Request) *models.User {
	user, _ := middleware.UserFromContext(r.Context())
	return user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError renders err as {"message"} with the status of its kind.
// Dependency failures are logged with their cause.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		se = service.Dependency("Internal server error", err)
	}
	if se.Kind == service.KindDependency {
		h.log.WithFields(logrus.Fields{
			"request_id": chimw.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Errorf("%s: %v", se.Message, se.Err)
	}
	writeMessage(w, se.Kind.Status(), se.Message)
}

// decodeJSON reads a JSON body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
