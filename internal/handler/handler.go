package handler

import (
	"github.com/FooledKiwi/route-proxy/internal/service"
	"github.com/sirupsen/logrus"
)

// Handler holds the dependencies for the route endpoints. Individual methods
// are registered as gin handler functions.
type Handler struct {
	routingService *service.RoutingService
	log            logrus.FieldLogger
	// summaryDefault makes GET /route answer with the summary shape instead
	// of the upstream document.
	summaryDefault bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithSummaryDefault makes Route respond like RouteSummary.
func WithSummaryDefault(enabled bool) Option {
	return func(h *Handler) { h.summaryDefault = enabled }
}

// New creates a Handler with the given dependencies.
func New(routingService *service.RoutingService, log logrus.FieldLogger, opts ...Option) *Handler {
	h := &Handler{
		routingService: routingService,
		log:            log,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}
