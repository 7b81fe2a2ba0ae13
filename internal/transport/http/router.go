package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hotel-account-api/internal/application/account"
	"github.com/hotel-account-api/internal/application/otp"
	"github.com/hotel-account-api/internal/application/session"
	"github.com/hotel-account-api/internal/config"
	"github.com/hotel-account-api/internal/domain"
	"github.com/hotel-account-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/hotel-account-api/internal/infrastructure/jwt"
	"github.com/hotel-account-api/internal/infrastructure/smtp"
	"github.com/hotel-account-api/internal/infrastructure/sns"
	"github.com/hotel-account-api/internal/transport/http/handler"
	appmiddleware "github.com/hotel-account-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router. OTPService is
// built in main so the cleanup timer can share the same instance.
type Deps struct {
	UserRepo    *dynamo.UserRepo
	OTPService  otp.Service
	Mailer      smtp.Mailer
	SMSSender   sns.SMSSender
	JWTProvider *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	accountSvc := account.NewService(deps.UserRepo, deps.OTPService, deps.Mailer, deps.SMSSender)
	sessionSvc := session.NewService(deps.UserRepo, deps.JWTProvider)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	accountH := handler.NewAccountHandler(accountSvc)
	pwH := handler.NewPasswordRecoveryHandler(accountSvc)
	maintH := handler.NewOTPMaintenanceHandler(deps.OTPService)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", accountH.Register)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/password-recovery/{action}", pwH.Action)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/account", accountH.Get)
			r.Post("/account/otp/request", accountH.RequestOTP)
			r.Post("/account/otp/verify", accountH.VerifyOTP)
			r.Post("/account/otp/cancel", accountH.CancelOTP)
			r.Put("/account/email", accountH.ChangeEmail)
			r.Put("/account/password", accountH.ChangePassword)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/admin/otp/cleanup", maintH.Cleanup)
			})
		})
	})

	return r
}
