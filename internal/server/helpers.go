package server

import (
	"errors"
	"strings"

	"smedia/internal/middleware"
	"smedia/internal/models"
	"smedia/internal/service"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten signals that a helper already committed the response.
// Handlers return nil when they see it.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed page/limit query parameters.
type Pagination struct {
	Page  int
	Limit int
}

// parsePagination reads page and limit. Page is at least 1 and limit falls back
// to the default when missing or not positive and is capped at the maximum.
func parsePagination(c *fiber.Ctx) Pagination {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", service.DefaultPageSize)
	if limit <= 0 {
		limit = service.DefaultPageSize
	}
	if limit > service.MaxPageSize {
		limit = service.MaxPageSize
	}
	return Pagination{Page: page, Limit: limit}
}

// maxPostIDLength bounds ids accepted from the path. Anything longer cannot
// name a stored post.
const maxPostIDLength = 64

// rawPostID returns the trimmed :id parameter and whether it could name a post.
func rawPostID(c *fiber.Ctx) (string, bool) {
	id := strings.TrimSpace(c.Params("id"))
	return id, id != "" && len(id) <= maxPostIDLength
}

// postID reads the :id route parameter. An id that cannot exist is answered
// like any unknown post, with a 404, and errResponseWritten is returned.
func postID(c *fiber.Ctx) (string, error) {
	id, ok := rawPostID(c)
	if !ok {
		_ = models.RespondWithAppError(c, models.NewNotFoundError("Post", id))
		return "", errResponseWritten
	}
	return id, nil
}

// identity returns the caller set by AuthRequired. Routes using it are always
// behind AuthRequired, so a missing identity is answered with 401.
func identity(c *fiber.Ctx) (middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Unauthorized"))
		return middleware.Identity{}, errResponseWritten
	}
	return id, nil
}

// bindJSON parses the request body into dst or writes a 400.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithAppError(c, err)
}
