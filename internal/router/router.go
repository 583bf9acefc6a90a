// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"funding-service/internal/auth"
	"funding-service/internal/handler"
	"funding-service/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func SetupRoutes(
	walletHandler *handler.WalletHandler,
	webhookHandler *handler.WebhookHandler,
	opts Options,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderUserID, auth.HeaderUserEmail},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	identity := auth.NewIdentityMiddleware(logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway notifications authenticate by signature, not by user.
		r.Post("/webhooks/monnify", webhookHandler.HandleMonnifyWebhook)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireOwner())

			r.Route("/wallet", func(r chi.Router) {
				r.Post("/fund", walletHandler.HandleFund)
				r.Get("/verify/{reference}", walletHandler.HandleVerify)
				r.Get("/balance", walletHandler.HandleBalance)
			})
			r.Get("/transactions", walletHandler.HandleListTransactions)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests. Bodies are never logged.
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
