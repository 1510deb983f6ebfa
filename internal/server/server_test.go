package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smedia/internal/bootstrap"
	"smedia/internal/config"
	"smedia/internal/featureflags"
	"smedia/internal/models"
	"smedia/internal/repository"
	"smedia/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type harness struct {
	t     *testing.T
	app   *fiber.App
	srv   *Server
	posts repository.PostRepository
	users repository.UserRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	cfg := &config.Config{
		Port:           "0",
		StoreDriver:    config.StoreDriverSQLite,
		JWTSecret:      testSecret,
		JWTIssuer:      "smedia-auth",
		JWTAudience:    "smedia-client",
		AllowedOrigins: "http://localhost:5173",
		FeatureFlags:   "live_feed=on",
	}
	db := testutil.NewSQLiteDB(t)
	rt := &bootstrap.Runtime{
		Driver: config.StoreDriverSQLite,
		DB:     db,
		Posts:  repository.NewPostRepository(db),
		Users:  repository.NewUserRepository(db),
	}

	srv, err := NewServerWithDeps(cfg, rt)
	require.NoError(t, err)

	return &harness{t: t, app: srv.NewApp(), srv: srv, posts: rt.Posts, users: rt.Users}
}

func (h *harness) token(email string) string {
	h.t.Helper()
	name, _, _ := strings.Cut(email, "@")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     "id-" + name,
		"email":   email,
		"name":    strings.ToUpper(name[:1]) + name[1:],
		"picture": "https://cdn.example.com/" + name + ".png",
		"iss":     "smedia-auth",
		"aud":     "smedia-client",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(h.t, err)
	return s
}

// do sends a request as email (anonymous when empty) and decodes the JSON reply.
func (h *harness) do(method, path, email string, body interface{}) (int, map[string]interface{}) {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(email))
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer func() { _ = resp.Body.Close() }()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (h *harness) createPost(email, text string) string {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/posts", email, map[string]string{"text": text})
	require.Equal(h.t, fiber.StatusCreated, status, body)
	post := body["post"].(map[string]interface{})
	return post["id"].(string)
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "up", body["status"])

	status, body = h.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["store"])
	assert.Equal(t, "disabled", checks["redis"])
	assert.Equal(t, "sqlite", checks["storeDriver"])
}

func TestCreateAndListPosts(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(http.MethodPost, "/api/posts", "", map[string]string{"text": "anon"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := h.do(http.MethodPost, "/api/posts", "ann@example.com", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Provide text or image.", body["error"])

	for i := 0; i < 3; i++ {
		h.createPost("ann@example.com", fmt.Sprintf("post %d", i))
	}

	status, body = h.do(http.MethodGet, "/api/posts?page=2&limit=2", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 2, body["limit"])
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["posts"], 1)
}

func TestGetPost(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "hello")

	status, body := h.do(http.MethodGet, "/api/posts/"+id, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "hello", body["post"].(map[string]interface{})["text"])

	status, body = h.do(http.MethodGet, "/api/posts/missing", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, models.CodeNotFound, body["code"])

	status, body = h.do(http.MethodGet, "/api/posts/"+strings.Repeat("x", 65), "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, models.CodeNotFound, body["code"])
}

func TestGetPostHidesReporters(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "report me")

	status, _ := h.do(http.MethodPost, "/api/posts/"+id+"/report", "bob@example.com", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body := h.do(http.MethodGet, "/api/posts/"+id, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	post := body["post"].(map[string]interface{})
	assert.EqualValues(t, 1, post["reports"])
	assert.NotContains(t, post, "reportedBy")
}

func TestToggleLikeAndRepost(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "like me")

	status, body := h.do(http.MethodPost, "/api/posts/"+id+"/like", "bob@example.com", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["likes"])
	assert.Equal(t, true, body["liked"])

	_, body = h.do(http.MethodPost, "/api/posts/"+id+"/like", "BOB@example.com", nil)
	assert.EqualValues(t, 0, body["likes"])
	assert.Equal(t, false, body["liked"])

	_, body = h.do(http.MethodPost, "/api/posts/"+id+"/repost", "bob@example.com", nil)
	assert.EqualValues(t, 1, body["reposts"])
	assert.Equal(t, true, body["reposted"])

	status, _ = h.do(http.MethodPost, "/api/posts/"+id+"/like", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = h.do(http.MethodPost, "/api/posts/missing/repost", "bob@example.com", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAddComment(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "talk to me")

	status, body := h.do(http.MethodPost, "/api/posts/"+id+"/comment", "bob@example.com", map[string]string{"text": "  hi there "})
	require.Equal(t, fiber.StatusOK, status)
	comment := body["comment"].(map[string]interface{})
	assert.Equal(t, "hi there", comment["text"])
	assert.Equal(t, "Bob", comment["authorName"])
	assert.Equal(t, "https://cdn.example.com/bob.png", comment["authorAvatar"])

	status, body = h.do(http.MethodPost, "/api/posts/"+id+"/comment", "bob@example.com", map[string]string{"text": "   "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Comment text is required", body["error"])
}

func TestIncrementViewAlwaysSucceeds(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "watch me")

	status, body := h.do(http.MethodPost, "/api/posts/"+id+"/view", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = h.do(http.MethodPost, "/api/posts/missing/view", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = h.do(http.MethodPost, "/api/posts/"+strings.Repeat("x", 65)+"/view", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	_, body = h.do(http.MethodGet, "/api/posts/"+id, "", nil)
	assert.EqualValues(t, 1, body["post"].(map[string]interface{})["views"])
}

func TestReportPostReachesThreshold(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "questionable")

	for i := 1; i <= 4; i++ {
		status, body := h.do(http.MethodPost, "/api/posts/"+id+"/report", fmt.Sprintf("r%d@example.com", i), nil)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, msgReported, body["message"])
		assert.EqualValues(t, i, body["reports"])
	}

	status, body := h.do(http.MethodPost, "/api/posts/"+id+"/report", "r1@example.com", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, models.CodeAlreadyReported, body["code"])

	_, body = h.do(http.MethodGet, "/api/reports/me", "ann@example.com", nil)
	assert.Len(t, body["posts"], 1)

	status, body = h.do(http.MethodPost, "/api/posts/"+id+"/report", "r5@example.com", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, msgDeletedByReports, body["message"])
	assert.Equal(t, true, body["deleted"])

	status, _ = h.do(http.MethodGet, "/api/posts/"+id, "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestEditAndDeleteOwnership(t *testing.T) {
	h := newHarness(t)
	id := h.createPost("ann@example.com", "draft")

	status, _ := h.do(http.MethodPut, "/api/posts/"+id, "bob@example.com", map[string]string{"text": "hijack"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := h.do(http.MethodPut, "/api/posts/"+id, "ann@example.com", map[string]string{"text": "final"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "final", body["post"].(map[string]interface{})["text"])

	status, _ = h.do(http.MethodDelete, "/api/posts/"+id, "bob@example.com", nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = h.do(http.MethodDelete, "/api/posts/"+id, "ann@example.com", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Post deleted", body["message"])

	status, _ = h.do(http.MethodDelete, "/api/posts/"+id, "ann@example.com", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.users.Create(t.Context(), &models.User{ID: "id-ann", Email: "ann@example.com", Name: "Ann", Username: "ann"}))
	h.createPost("ann@example.com", "Gophers everywhere")
	h.createPost("ann@example.com", "nothing here")

	status, body := h.do(http.MethodGet, "/api/search?q=gopher", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, body["results"], 1)
	first := body["results"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Gophers everywhere", first["content"])

	_, body = h.do(http.MethodGet, "/api/search?q=", "", nil)
	assert.Len(t, body["results"], 2)

	_, body = h.do(http.MethodGet, "/api/search?q=an&type=user", "", nil)
	assert.Len(t, body["results"], 1)
}

func TestFeatureFlagsEndpoint(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(http.MethodGet, "/api/admin/feature-flags", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := h.do(http.MethodGet, "/api/admin/feature-flags", "ann@example.com", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"live_feed": true}, body["flags"])
	assert.Equal(t, map[string]interface{}{"live_feed": "on"}, body["raw"])
}

func TestFeedWebsocketRequiresUpgrade(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(http.MethodGet, "/api/ws/feed", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = h.do(http.MethodGet, "/api/ws/feed", "ann@example.com", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}

func TestFeedWebsocketRespectsFlag(t *testing.T) {
	h := newHarness(t)
	h.srv.featureFlags = featureflags.NewManager("live_feed=off")

	req := httptest.NewRequest(http.MethodGet, "/api/ws/feed?token="+h.token("ann@example.com"), nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
