package handler

import (
	"net/http"
	"net/netip"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/middleware"
	"github.com/Dan9191/claims-service/internal/models"
)

// RouterConfig holds the cross-cutting HTTP settings. Only TrustedProxies
// may set the client address through forwarding headers.
type RouterConfig struct {
	CORSOrigins    []string
	AuthRateLimit  float64
	AuthRateBurst  int
	TrustedProxies []netip.Prefix
}

// NewRouter wires every route. socket serves /ws and may be nil.
func NewRouter(h *Handler, authn middleware.Authenticator, socket http.Handler, cfg RouterConfig, log *logrus.Logger) http.Handler {
	r := newBaseRouter(h, socket, cfg.TrustedProxies, log)

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	requireAuth := middleware.AuthMiddleware(authn)

	// Public routes
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.Handle("/register", limiter.Middleware(http.HandlerFunc(h.Register))).Methods(http.MethodPost)
	authRouter.Handle("/login", limiter.Middleware(http.HandlerFunc(h.Login))).Methods(http.MethodPost)

	// Protected routes
	sessionRouter := r.PathPrefix("/auth").Subrouter()
	sessionRouter.Use(requireAuth)
	sessionRouter.HandleFunc("/session", h.Session).Methods(http.MethodGet)
	sessionRouter.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)

	// Direct document links may carry the token in the query string
	r.Handle("/claims/{id}/document", middleware.AuthMiddlewareWithQuery(authn)(http.HandlerFunc(h.Document))).
		Methods(http.MethodGet)

	patientOnly := r.PathPrefix("/claims").Subrouter()
	patientOnly.Use(requireAuth, middleware.RequireRole(models.RolePatient))
	patientOnly.HandleFunc("/my-claims", h.MyClaims).Methods(http.MethodGet)

	insurerOnly := r.PathPrefix("/claims").Subrouter()
	insurerOnly.Use(requireAuth, middleware.RequireRole(models.RoleInsurer))
	insurerOnly.HandleFunc("/export", h.ExportClaims).Methods(http.MethodGet)
	insurerOnly.HandleFunc("/{id}/status", h.UpdateStatus).Methods(http.MethodPatch)

	claims := r.PathPrefix("/claims").Subrouter()
	claims.Use(requireAuth)
	claims.HandleFunc("", h.ListClaims).Methods(http.MethodGet)
	claims.HandleFunc("", h.CreateClaim).Methods(http.MethodPost)
	claims.HandleFunc("/{id}", h.GetClaim).Methods(http.MethodGet)
	claims.HandleFunc("/{id}", h.UpdateClaim).Methods(http.MethodPut)
	claims.HandleFunc("/{id}", h.DeleteClaim).Methods(http.MethodDelete)

	notifications := r.PathPrefix("/notifications").Subrouter()
	notifications.Use(requireAuth, middleware.RequireRole(models.RoleInsurer))
	notifications.HandleFunc("/emit", h.Emit).Methods(http.MethodPost)

	return middleware.CORS(cfg.CORSOrigins)(r)
}

// NewSocketRouter serves only the health check and the websocket endpoint,
// for processes that run the gateway alone
func NewSocketRouter(h *Handler, socket http.Handler, cfg RouterConfig, log *logrus.Logger) http.Handler {
	return middleware.CORS(cfg.CORSOrigins)(newBaseRouter(h, socket, cfg.TrustedProxies, log))
}

func newBaseRouter(h *Handler, socket http.Handler, trusted []netip.Prefix, log *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(chimw.RequestID, middleware.RealIP(trusted), middleware.RequestLogger(log), chimw.Recoverer)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if socket != nil {
		r.Handle("/ws", socket).Methods(http.MethodGet)
	}
	return r
}
