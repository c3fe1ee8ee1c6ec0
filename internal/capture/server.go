package capture

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Server handles HTTP requests for captures and expenses
type Server struct {
	service   *Service
	basicAuth BasicAuth
	files     FileSource
	analyze   *clientLimiter
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerOptions configures the optional parts of the server
type ServerOptions struct {
	// Files serves /files/ when storage is kept on this host
	Files FileSource
	// AnalyzeRate is the manual re-analyze limit per client per second; 0 disables it
	AnalyzeRate  float64
	AnalyzeBurst int
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, opts ServerOptions) *Server {
	return NewServerWithMux(service, basicAuth, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, opts ServerOptions, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		files:     opts.Files,
		analyze:   newClientLimiter(opts.AnalyzeRate, opts.AnalyzeBurst),
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Expense Capture"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// API endpoints - captures
	s.mux.HandleFunc("POST /api/captures", s.requireAuth(s.handleStartCapture))
	s.mux.HandleFunc("GET /api/captures/{id}", s.requireAuth(s.handleGetCapture))
	s.mux.HandleFunc("DELETE /api/captures/{id}", s.requireAuth(s.handleDiscardCapture))
	s.mux.HandleFunc("POST /api/captures/{id}/image", s.requireAuth(s.handleSubmitImage))
	s.mux.HandleFunc("GET /api/captures/{id}/original.jpg", s.requireAuth(s.handleImage(false)))
	s.mux.HandleFunc("GET /api/captures/{id}/processed.jpg", s.requireAuth(s.handleImage(true)))
	s.mux.HandleFunc("POST /api/captures/{id}/analyze", s.requireAuth(s.analyze.middleware(s.handleAnalyze)))
	s.mux.HandleFunc("PUT /api/captures/{id}/form", s.requireAuth(s.handleUpdateForm))
	s.mux.HandleFunc("PUT /api/captures/{id}/mode", s.requireAuth(s.handleSetMode))
	s.mux.HandleFunc("POST /api/captures/{id}/retake", s.requireAuth(s.handleRetake))
	s.mux.HandleFunc("POST /api/captures/{id}/confirm", s.requireAuth(s.handleConfirm))
	s.mux.HandleFunc("GET /api/captures/{id}/region", s.requireAuth(s.handleRegion))

	// API endpoints - expenses
	s.mux.HandleFunc("GET /api/expenses/{id}", s.requireAuth(s.handleGetExpense))
	s.mux.HandleFunc("GET /api/expenses", s.requireAuth(s.handleListExpenses))

	// API endpoints - preferences
	s.mux.HandleFunc("GET /api/preferences/mode", s.requireAuth(s.handleGetPreferredMode))
	s.mux.HandleFunc("PUT /api/preferences/mode", s.requireAuth(s.handleSetPreferredMode))

	// Stored images, only when they live on this host
	if s.files != nil {
		s.mux.HandleFunc("GET /files/{path...}", s.requireAuth(s.handleFile))
	}

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// ServeHTTP implements http.Handler, wrapping the mux with CORS handling
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
