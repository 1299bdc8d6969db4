package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FooledKiwi/route-proxy/internal/routing"
)

// ErrInvalidRequest is returned when origin or destination is missing.
// Callers should use errors.Is to distinguish this from upstream errors.
var ErrInvalidRequest = errors.New("origin and destination are required")

// RoutingService orchestrates route lookups against a Directions client.
type RoutingService struct {
	client routing.Client
}

// NewRoutingService creates a RoutingService.
//
// client should be a *routing.GoogleClient, optionally wrapped in a
// *routing.CachedClient, for production use, or any Client for testing.
func NewRoutingService(client routing.Client) *RoutingService {
	return &RoutingService{client: client}
}

// Lookup validates req and returns the upstream Directions document as-is.
// Places are forwarded exactly as given.
func (s *RoutingService) Lookup(ctx context.Context, req routing.Request) (*routing.Document, error) {
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, ErrInvalidRequest
	}

	doc, err := s.client.Directions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("service: Lookup: %w", err)
	}
	return doc, nil
}

// Summary performs Lookup and reshapes the first leg of the first route.
//
// Errors:
//   - ErrInvalidRequest if origin or destination is empty.
//   - routing.ErrNoRoutes (wrapped) if upstream found nothing.
//   - routing.ErrMalformedResponse (wrapped) if the body is not a Directions
//     document.
func (s *RoutingService) Summary(ctx context.Context, req routing.Request) (*routing.Summary, error) {
	doc, err := s.Lookup(ctx, req)
	if err != nil {
		return nil, err
	}

	summary, err := routing.Summarize(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("service: Summary: %w", err)
	}
	return summary, nil
}
