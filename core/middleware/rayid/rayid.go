package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderName is the header carrying the ray id on responses (and accepted on
// requests from upstream proxies).
const HeaderName = "X-Ray-ID"

// New returns a middleware that ensures every request carries a ray id.
// An incoming id is reused so traces can span proxies; otherwise a fresh
// UUID is generated. The id is stored in locals for logger.WithRayID and
// echoed on the response.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderName)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals("ray_id", rid)
		c.Set(HeaderName, rid)
		return c.Next()
	}
}
