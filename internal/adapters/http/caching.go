package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets a default Cache-Control on GET responses that did not set one.
// Live navigation state must never be served from a cache.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if c.Method() != fiber.MethodGet || c.Get(fiber.HeaderCacheControl) != "" {
			return err
		}

		path := c.Path()
		switch {
		case path == "/v1/status", path == "/v1/route", path == "/metrics":
			c.Set(fiber.HeaderCacheControl, "no-store")
		case path == "/v1/health", path == "/v1/ready":
			c.Set(fiber.HeaderCacheControl, "no-cache")
		case strings.HasPrefix(path, "/v1/alerts"), strings.HasPrefix(path, "/v1/trips"):
			c.Set(fiber.HeaderCacheControl, "private, max-age=5")
		case strings.HasPrefix(path, "/docs"):
			c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
		}
		return err
	}
}

// ETagMiddleware adds a weak ETag to successful GET bodies and answers
// 304 when the client already holds it. The route polyline is the main
// beneficiary: it only changes every few hundred meters.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		sum := sha256.Sum256(body)
		etag := `W/"` + hex.EncodeToString(sum[:8]) + `"`
		c.Set(fiber.HeaderETag, etag)

		if c.Get(fiber.HeaderIfNoneMatch) == etag {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}
