package server

import (
	"log/slog"

	"smedia/internal/middleware"
	"smedia/internal/models"
	"smedia/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Report outcome messages.
const (
	msgReported         = "Post reported successfully"
	msgDeletedByReports = "Post deleted due to reports"
)

type commentRequest struct {
	Text string `json:"text"`
}

// ToggleLike handles POST /api/posts/:id/like
//
//	@Summary	Like or unlike a post
//	@Tags		interactions
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	service.LikeResult
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/posts/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	id, err := postID(c)
	if err != nil {
		return nil
	}

	res, err := s.interactions.ToggleLike(c.UserContext(), id, me.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// ToggleRepost handles POST /api/posts/:id/repost
//
//	@Summary	Repost or un-repost a post
//	@Tags		interactions
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	service.RepostResult
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/posts/{id}/repost [post]
func (s *Server) ToggleRepost(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	id, err := postID(c)
	if err != nil {
		return nil
	}

	res, err := s.interactions.ToggleRepost(c.UserContext(), id, me.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// AddComment handles POST /api/posts/:id/comment
//
//	@Summary	Comment on a post
//	@Tags		interactions
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Post ID"
//	@Param		body	body		commentRequest	true	"Comment"
//	@Success	200		{object}	commentResponse
//	@Failure	400		{object}	models.ErrorResponse
//	@Failure	404		{object}	models.ErrorResponse
//	@Router		/posts/{id}/comment [post]
func (s *Server) AddComment(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	id, err := postID(c)
	if err != nil {
		return nil
	}
	var req commentRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	comment, err := s.interactions.AddComment(c.UserContext(), service.AddCommentInput{
		PostID:       id,
		AuthorEmail:  me.Email,
		AuthorName:   me.Name,
		AuthorAvatar: me.Avatar,
		Text:         req.Text,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(commentResponse{Success: true, Comment: comment})
}

// IncrementView handles POST /api/posts/:id/view. Counting is best-effort: the
// caller always gets success and failures are only logged.
//
//	@Summary	Count a view
//	@Tags		interactions
//	@Produce	json
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	successResponse
//	@Router		/posts/{id}/view [post]
func (s *Server) IncrementView(c *fiber.Ctx) error {
	id, ok := rawPostID(c)
	if !ok {
		return c.JSON(successResponse{Success: true})
	}

	if err := s.interactions.IncrementView(c.UserContext(), id); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "view increment failed",
			slog.String("post_id", id),
			slog.String("error", err.Error()))
	}
	return c.JSON(successResponse{Success: true})
}

// ReportPost handles POST /api/posts/:id/report
//
//	@Summary	Report a post; the fifth distinct report removes it
//	@Tags		moderation
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	reportResponse
//	@Failure	400	{object}	models.ErrorResponse	"ALREADY_REPORTED"
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/posts/{id}/report [post]
func (s *Server) ReportPost(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	id, err := postID(c)
	if err != nil {
		return nil
	}

	res, err := s.interactions.ReportPost(c.UserContext(), id, me.Email)
	if err != nil {
		return respondError(c, err)
	}

	if res.Deleted {
		return c.JSON(reportResponse{Message: msgDeletedByReports, Deleted: true})
	}
	return c.JSON(reportResponse{Message: msgReported, Reports: res.Reports})
}

type commentResponse struct {
	Success bool            `json:"success"`
	Comment *models.Comment `json:"comment"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type reportResponse struct {
	Message string `json:"message"`
	Reports int    `json:"reports,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}
