package server

import (
	"smedia/internal/models"
	"smedia/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Text        string `json:"text"`
	ImageURL    string `json:"imageUrl"`
	ImageFileID string `json:"imageFileId"`
}

type updatePostRequest struct {
	Text string `json:"text"`
}

// GetPosts handles GET /api/posts
//
//	@Summary	List the feed, newest first
//	@Tags		posts
//	@Produce	json
//	@Param		page	query		int	false	"Page number (from 1)"
//	@Param		limit	query		int	false	"Page size (max 50)"
//	@Success	200		{object}	postPageResponse
//	@Failure	503		{object}	models.ErrorResponse
//	@Router		/posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c)

	result, err := s.posts.ListPosts(c.UserContext(), service.ListPostsInput{Page: page.Page, Limit: page.Limit})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(postPageResponse{
		Success: true,
		Page:    result.Page,
		Limit:   result.Limit,
		Total:   result.Total,
		Posts:   result.Posts,
	})
}

// GetPost handles GET /api/posts/:id
//
//	@Summary	Get a post
//	@Tags		posts
//	@Produce	json
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	postResponse
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return nil
	}

	post, err := s.posts.GetPost(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(postResponse{Success: true, Post: post})
}

// CreatePost handles POST /api/posts
//
//	@Summary	Create a post
//	@Tags		posts
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		body	body		createPostRequest	true	"Post body"
//	@Success	201		{object}	postResponse
//	@Failure	400		{object}	models.ErrorResponse
//	@Failure	401		{object}	models.ErrorResponse
//	@Router		/posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	var req createPostRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	post, err := s.posts.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID:    me.UserID,
		AuthorEmail: me.Email,
		Text:        req.Text,
		ImageURL:    req.ImageURL,
		ImageFileID: req.ImageFileID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(postResponse{Success: true, Post: post})
}

// UpdatePost handles PUT /api/posts/:id
//
//	@Summary	Edit the text of your own post
//	@Tags		posts
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string				true	"Post ID"
//	@Param		body	body		updatePostRequest	true	"New text"
//	@Success	200		{object}	postResponse
//	@Failure	403		{object}	models.ErrorResponse
//	@Failure	404		{object}	models.ErrorResponse
//	@Router		/posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	id, err := postID(c)
	if err != nil {
		return nil
	}
	var req updatePostRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	post, err := s.interactions.EditPost(c.UserContext(), service.EditPostInput{
		PostID:     id,
		ActorEmail: me.Email,
		Text:       req.Text,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(postResponse{Success: true, Post: post})
}

// DeletePost handles DELETE /api/posts/:id
//
//	@Summary	Delete your own post
//	@Tags		posts
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	messageResponse
//	@Failure	403	{object}	models.ErrorResponse
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	id, err := postID(c)
	if err != nil {
		return nil
	}

	if err := s.interactions.DeletePost(c.UserContext(), id, me.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(messageResponse{Success: true, Message: "Post deleted"})
}

// Search handles GET /api/search?q=&type=post|user
//
//	@Summary	Search posts by text, or users by name
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	false	"Query (empty lists the most viewed posts)"
//	@Param		type	query		string	false	"post (default) or user"
//	@Success	200		{object}	searchResponse
//	@Router		/search [get]
func (s *Server) Search(c *fiber.Ctx) error {
	q := c.Query("q")

	if c.Query("type") == "user" {
		users, err := s.posts.SearchUsers(c.UserContext(), q)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"results": users})
	}

	results, err := s.posts.SearchPosts(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(searchResponse{Results: results})
}

// GetMyReportedPosts handles GET /api/reports/me
//
//	@Summary	List your posts that have been reported
//	@Tags		moderation
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	reportedPostsResponse
//	@Router		/reports/me [get]
func (s *Server) GetMyReportedPosts(c *fiber.Ctx) error {
	me, err := identity(c)
	if err != nil {
		return nil
	}
	posts, err := s.posts.ListReportedPosts(c.UserContext(), me.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(reportedPostsResponse{Posts: posts})
}

type postPageResponse struct {
	Success bool           `json:"success"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Total   int64          `json:"total"`
	Posts   []*models.Post `json:"posts"`
}

type postResponse struct {
	Success bool         `json:"success"`
	Post    *models.Post `json:"post"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type searchResponse struct {
	Results []service.SearchResult `json:"results"`
}

type reportedPostsResponse struct {
	Posts []*models.Post `json:"posts"`
}
