package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/asia-shop/identity/internal/identity/service"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/httpx"
	"github.com/asia-shop/identity/pkg/jwtx"
	"github.com/asia-shop/identity/pkg/slogx"

	_ "github.com/asia-shop/identity/api/identity" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	signer       jwtx.Signer
	verifier     jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store           store.Store
	AuthService     *service.AuthService
	UserService     *service.UserService
	MFAService      *service.MFAService
	EmailOTPService *service.EmailOTPService
	SessionService  *service.SessionService
}

func NewRouter(
	signer jwtx.Signer,
	verifier jwtx.Verifier,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		signer:       signer,
		verifier:     verifier,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSessions()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Identity Service API
//	@version		0.1.0
//	@description	User identity service covering the MFA lifecycle (TOTP, backup codes, email one-time codes)
//	@description	and the concurrent session registry. All endpoints return a uniform response envelope.
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService, UserService: r.UserService}

	// Credential endpoints get the strict limit to slow brute force.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login/challenge",
		httpx.Chain(http.HandlerFunc(h.HandleChallenge),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService, EmailOTPService: r.EmailOTPService}

	secured := func(handler http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(handler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(limit),
		)
	}

	r.Mux.Handle("POST /v1/mfa/setup", secured(h.HandleSetup, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/mfa/setup/{id}/qr", secured(h.HandleRegenerateQR, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/mfa/enable", secured(h.HandleEnable, httpx.StrictLimit))
	r.Mux.Handle("POST /v1/mfa/verify", secured(h.HandleVerify, httpx.StrictLimit))
	r.Mux.Handle("POST /v1/mfa/disable", secured(h.HandleDisable, httpx.StrictLimit))
	r.Mux.Handle("GET /v1/mfa/status", secured(h.HandleStatus, httpx.LenientLimit))
	r.Mux.Handle("POST /v1/mfa/backup-codes/generate", secured(h.HandleRegenerateBackupCodes, httpx.StrictLimit))
	r.Mux.Handle("POST /v1/mfa/email-otp/send", secured(h.HandleSendEmailOTP, httpx.StrictLimit))
}

func (r *Router) registerSessions() {
	h := &SessionHandler{SessionService: r.SessionService}

	secured := func(handler http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(handler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(limit),
		)
	}

	r.Mux.Handle("GET /v1/sessions", secured(h.HandleList, httpx.LenientLimit))
	r.Mux.Handle("DELETE /v1/sessions/{id}", secured(h.HandleTerminate, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/sessions/terminate-others", secured(h.HandleTerminateOthers, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/sessions/stats", secured(h.HandleStats, httpx.LenientLimit))
	r.Mux.Handle("GET /v1/sessions/settings", secured(h.HandleGetSettings, httpx.LenientLimit))
	r.Mux.Handle("PUT /v1/sessions/settings", secured(h.HandleUpdateSettings, httpx.ModerateLimit))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer))
}
