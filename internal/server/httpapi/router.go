package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type RouterOptions struct {
	CORSOrigin string
	Metrics    http.Handler
	// Ready reports whether dependencies (the database) are reachable.
	Ready  func(ctx context.Context) error
	Logger logging.Logger
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	l := opts.Logger
	if l == nil {
		l = logging.Nop{}
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, nil, "OK")
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r.Context()); err != nil {
				l.Warn(r.Context(), "readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, nil, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, nil, "ready")
	}).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	users := r.PathPrefix("/api/v1/users").Subrouter()
	users.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	users.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	users.HandleFunc("/refresh-token", h.RefreshToken).Methods(http.MethodPost)

	guard := RequireUser(h.sessions)
	users.Handle("/logout", guard(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)
	users.Handle("/current-user", guard(http.HandlerFunc(h.CurrentUser))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, nil, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, nil, "method not allowed")
	})

	var handler http.Handler = r
	handler = RequestLogger(l)(handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{opts.CORSOrigin}),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(handler)
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{l}))(handler)
	return handler
}

type recoveryLogger struct {
	l logging.Logger
}

func (r recoveryLogger) Println(args ...any) {
	r.l.Error(context.Background(), "panic in http handler", "panic", args)
}
