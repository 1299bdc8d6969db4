package handler

import (
	"net/http"
	"strings"

	"github.com/FooledKiwi/route-proxy/internal/routing"
	"github.com/gin-gonic/gin"
)

// parseRouteRequest reads the route query parameters. On failure it writes a
// 400 response and returns false.
func parseRouteRequest(c *gin.Context) (routing.Request, bool) {
	origin, ok := requiredQuery(c, "origin", "start")
	if !ok {
		return routing.Request{}, false
	}

	destination, ok := requiredQuery(c, "destination", "end")
	if !ok {
		return routing.Request{}, false
	}

	avoidTolls, ok := parseOptionalBool(c, "avoid_tolls")
	if !ok {
		return routing.Request{}, false
	}

	return routing.Request{
		Origin:      origin,
		Destination: destination,
		Waypoints:   routing.ParseWaypoints(c.Query("waypoints")),
		AvoidTolls:  avoidTolls,
	}, true
}

// requiredQuery returns the first non-blank value among name and its aliases,
// exactly as given.
func requiredQuery(c *gin.Context, name string, aliases ...string) (string, bool) {
	for _, key := range append([]string{name}, aliases...) {
		if v := c.Query(key); strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})
	return "", false
}

// parseOptionalBool accepts true/false, 1/0, yes/no and on/off; absent means false.
func parseOptionalBool(c *gin.Context, name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(c.Query(name))) {
	case "", "false", "0", "no", "off":
		return false, true
	case "true", "1", "yes", "on":
		return true, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a boolean"})
	return false, false
}
