package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes bounds request bodies; a bulk commit of a few thousand lines fits
const maxBodyBytes = 4 << 20

// Deps are the services the API exposes
type Deps struct {
	Residents *residents.Service
	Tiers     *tiers.Service
	Generator *billing.Generator
	Ledger    *billing.Ledger
	Logger    logrus.FieldLogger
	Metrics   *observability.Metrics
	// RateLimiter throttles each actor; nil disables throttling
	RateLimiter RateLimiter
	// Location is the billing time zone used to read "YYYY-MM" periods
	Location *time.Location
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	log     logrus.FieldLogger

	residentHandlers *ResidentHandlers
	tierHandlers     *TierHandlers
	invoiceHandlers  *InvoiceHandlers
	paymentHandlers  *PaymentHandlers
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	log := deps.Logger.WithField("component", "api")

	s := &Server{
		router: mux.NewRouter(),
		log:    log,
	}
	s.residentHandlers = NewResidentHandlers(deps.Residents, log)
	s.tierHandlers = NewTierHandlers(deps.Tiers, log)
	s.invoiceHandlers = NewInvoiceHandlers(deps.Generator, deps.Ledger, deps.Location, log)
	s.paymentHandlers = NewPaymentHandlers(deps.Ledger, log)

	s.setupRoutes(deps.Metrics, deps.RateLimiter)

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestIDMiddleware,
			httputil.LoggingMiddleware(log),
			httputil.RecoveryMiddleware(log),
			httputil.MaxBytesMiddleware(maxBodyBytes),
			audit.Middleware,
		)(s.router),
		"iuran.api",
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(metrics *observability.Metrics, limiter RateLimiter) {
	s.router.Use(observability.HTTPMetricsMiddleware(metrics))
	s.router.Use(ActorMiddleware)
	s.router.Use(RateLimitMiddleware(limiter, s.log))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, http.StatusNotFound, httputil.ErrorResponse{Error: "route not found", Code: codeNotFound})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.RegisterRoutes(s.residentHandlers)
	s.RegisterRoutes(s.tierHandlers)
	s.RegisterRoutes(s.invoiceHandlers)
	s.RegisterRoutes(s.paymentHandlers)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
