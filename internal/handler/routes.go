package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/FooledKiwi/route-proxy/internal/middleware"
	"github.com/FooledKiwi/route-proxy/internal/routing"
	"github.com/FooledKiwi/route-proxy/internal/service"
	"github.com/gin-gonic/gin"
)

// msgNoRoutes is the body returned by the summary variant when the Directions
// API found no route. The transport status stays 200.
const msgNoRoutes = "経路が見つかりません"

// Route handles GET /route, answering with the configured variant.
func (h *Handler) Route(c *gin.Context) {
	if h.summaryDefault {
		h.RouteSummary(c)
		return
	}
	h.RouteRaw(c)
}

// RouteRaw handles GET /route/raw
//
// Query params:
//   - origin      (required) address, place name or "lat,lng"; alias "start"
//   - destination (required) same format as origin; alias "end"
//   - waypoints   (optional) comma-separated intermediate stops
//   - avoid_tolls (optional) boolean, default false
//
// Response: the Directions API status code and body, unmodified.
// Response 400: missing or invalid query parameters.
// Response 502: the Directions API could not be reached.
// Response 504: the request deadline passed before upstream answered.
func (h *Handler) RouteRaw(c *gin.Context) {
	req, ok := parseRouteRequest(c)
	if !ok {
		return
	}

	doc, err := h.routingService.Lookup(c.Request.Context(), req)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(doc.StatusCode, contentType, doc.Body)
}

// RouteSummary handles GET /route/summary
//
// Query params: as RouteRaw.
//
// Response 200:
//
//	{"summary":"首都高速1号羽田線","distance":12.3,"duration":31,
//	 "start_address":"...","end_address":"..."}
//
// distance is in kilometers (1 decimal), duration in minutes.
// When the Directions API returns no routes the status is still 200 with
// {"error":"経路が見つかりません"}.
//
// Response 400: missing or invalid query parameters.
// Response 502: the Directions API could not be reached or returned a body
// that is not a Directions document.
// Response 504: the request deadline passed before upstream answered.
func (h *Handler) RouteSummary(c *gin.Context) {
	req, ok := parseRouteRequest(c)
	if !ok {
		return
	}

	summary, err := h.routingService.Summary(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, routing.ErrNoRoutes) {
			c.JSON(http.StatusOK, gin.H{"error": msgNoRoutes})
			return
		}
		h.writeLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Health handles GET /health.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, routing.ErrMalformedResponse):
		h.log.WithError(err).WithField("request_id", c.GetString(middleware.RequestIDKey)).
			Warn("directions response could not be summarized")
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid directions response"})
		return
	case errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() != nil:
		// The inbound deadline fired; a per-attempt upstream timeout alone is a 502.
		h.log.WithError(err).WithField("request_id", c.GetString(middleware.RequestIDKey)).
			Warn("directions lookup exceeded request deadline")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		return
	}

	h.log.WithError(err).WithField("request_id", c.GetString(middleware.RequestIDKey)).
		Error("directions lookup failed")
	c.JSON(http.StatusBadGateway, gin.H{"error": "directions upstream unavailable"})
}
