package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags returns the configured flags and how they evaluate for the caller.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}

	return c.JSON(fiber.Map{
		"raw":   s.featureFlags.Raw(),
		"flags": s.featureFlags.Snapshot(me.Email),
	})
}
