package handler

import (
	"net/http"

	"github.com/Dan9191/claims-service/internal/service"
)

// Emit publishes an explicit notification to everyone or to one user
func (h *Handler) Emit(w http.ResponseWriter, r *http.Request) {
	var in service.EmitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.svc.Emit(r.Context(), currentUser(r), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Event emitted",
	})
}
