package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods  = "GET, POST, PATCH, OPTIONS"
	corsAllowHeaders  = "Origin, Content-Type, Accept, Authorization, " + RequestIDHeader
	corsExposeHeaders = "Content-Length, " + RequestIDHeader
	corsMaxAge        = "86400"
)

// CORS lets the listed dashboard origins call the API with credentials.
// An origin pattern may hold one * which matches any run of characters,
// so "https://*.agency.io" admits every agency subdomain.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	match := originMatcher(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !match(origin) {
			if c.Request.Method == http.MethodOptions && origin != "" {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originMatcher(patterns []string) func(string) bool {
	exact := make(map[string]struct{}, len(patterns))
	var wildcards [][2]string
	for _, p := range patterns {
		if p == "*" {
			return func(string) bool { return true }
		}
		if before, after, ok := strings.Cut(p, "*"); ok {
			wildcards = append(wildcards, [2]string{before, after})
			continue
		}
		exact[p] = struct{}{}
	}

	return func(origin string) bool {
		if _, ok := exact[origin]; ok {
			return true
		}
		for _, w := range wildcards {
			if len(origin) >= len(w[0])+len(w[1]) &&
				strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) {
				return true
			}
		}
		return false
	}
}
