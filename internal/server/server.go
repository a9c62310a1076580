package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"socratic-go/internal/auth"
	"socratic-go/internal/ledger"
)

// Server exposes the token ledger over HTTP. Every mutating endpoint maps to
// exactly one ledger transition; the caller identity always comes from the
// verified bearer token, never from the request body.
type Server struct {
	svc       *ledger.TokenService
	content   ledger.ContentStore
	encryptor ledger.Encryptor
	issuer    *auth.TokenIssuer
	logger    ledger.Logger

	allowedOrigins []string
}

func NewServer(svc *ledger.TokenService, content ledger.ContentStore, encryptor ledger.Encryptor, issuer *auth.TokenIssuer, allowedOrigins []string, logger ledger.Logger) *Server {
	if logger == nil {
		logger = ledger.NewNopLogger()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		svc:            svc,
		content:        content,
		encryptor:      encryptor,
		issuer:         issuer,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Passphrase"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/auth/token", s.handleIssueToken)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.issuer))

		r.Post("/api/users/init", s.handleInitUser)

		r.Get("/api/wallet", s.handleGetWallet)
		r.Post("/api/wallet/purchase", s.handlePurchase)

		r.Post("/api/documents", s.handleUploadDocument)
		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{owner}/{index}", s.handleGetDocument)
		r.Get("/api/documents/{owner}/{index}/content", s.handleDownloadDocument)
		r.Post("/api/documents/{owner}/{index}/share", s.handleShareDocument)

		r.Post("/api/chat/query", s.handleChatQuery)
		r.Get("/api/chat", s.handleListQueries)

		r.Post("/api/quiz", s.handleGenerateQuiz)
		r.Get("/api/quiz", s.handleListQuizzes)

		r.Post("/api/stake", s.handleStake)
		r.Post("/api/stake/remove", s.handleUnstake)
		r.Get("/api/stake", s.handleListStakes)

		r.Get("/api/activity", s.handleListActivity)
	})

	return r
}

// ListenAndServe starts the HTTP server on the given port.
func (s *Server) ListenAndServe(port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	s.logger.Info("http server listening", "port", port)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
