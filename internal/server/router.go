// Package server translates HTTP requests into domain facade calls. It is
// deliberately thin: every invariant lives behind the facade.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campvibe/backend/internal/community"
	"github.com/campvibe/backend/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// The fronting proxy authenticates the session and forwards the stable user
// key in this header. Session mechanics are out of scope here.
const userEmailHeader = "X-User-Email"

const userEmailContextKey = "campvibe_user_email"

var errMissingCommunityService = errors.New("community service dependency required")

// Dependencies wires the router to its collaborators.
type Dependencies struct {
	Community      *community.Service
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewHTTPHandler builds the gin handler tree.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Community == nil {
		return nil, errMissingCommunityService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(accessLog(logger))
	if deps.RateLimitRPS > 0 && deps.RateLimitBurst > 0 {
		router.Use(rateLimitPerIP(deps.RateLimitRPS, deps.RateLimitBurst))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", userEmailHeader, requestIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{community: deps.Community, logger: logger}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	api := router.Group("/api")
	api.POST("/auth/signup", handler.handleSignup)
	api.POST("/auth/login", handler.handleLogin)
	api.GET("/auth/check-duplicate", handler.handleCheckDuplicate)
	api.GET("/community/posts", handler.handleListPosts)
	api.GET("/community/posts/:id", handler.handleGetPost)
	api.POST("/community/posts/:id/view", handler.handleRecordView)
	api.GET("/community/comments", handler.handleListComments)

	protected := api.Group("/")
	protected.Use(handler.requireIdentity)
	protected.POST("/community/posts", handler.handleCreatePost)
	protected.PUT("/community/posts/:id", handler.handleUpdatePost)
	protected.DELETE("/community/posts/:id", handler.handleDeletePost)
	protected.POST("/community/posts/:id/like", handler.handleToggleLike)
	protected.POST("/community/comments", handler.handleAddComment)
	protected.DELETE("/community/comments", handler.handleDeleteComment)
	protected.GET("/members/account", handler.handleGetAccount)
	protected.PUT("/members/account", handler.handleUpdateAccount)
	protected.GET("/members/activity", handler.handleActivity)
	protected.GET("/members/posts", handler.handleMemberPosts)
	protected.GET("/members/comments", handler.handleMemberComments)
	protected.GET("/members/likes", handler.handleMemberLikes)
	protected.GET("/members/rank", handler.handleMemberRank)

	return router, nil
}

type httpHandler struct {
	community *community.Service
	logger    *zap.Logger
}

func (h *httpHandler) requireIdentity(c *gin.Context) {
	email := strings.TrimSpace(c.GetHeader(userEmailHeader))
	if email == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userEmailContextKey, email)
	c.Next()
}

func (h *httpHandler) callerEmail(c *gin.Context) string {
	return c.GetString(userEmailContextKey)
}

// writeError maps the domain taxonomy onto HTTP statuses.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, community.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, community.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, community.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, community.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return 0, false
	}
	return id, true
}

type signupPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.community.CreateUser(c.Request.Context(), community.CreateUserInput{
		Email:    request.Email,
		Password: request.Password,
		Nickname: request.Nickname,
	}); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	profile, err := h.community.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, community.ErrForbidden) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleCheckDuplicate(c *gin.Context) {
	available, err := h.community.CheckDuplicate(c.Request.Context(), c.Query("type"), c.Query("value"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}

type createPostPayload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Image    string `json:"image"`
	Rating   int    `json:"rating"`
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	post, err := h.community.CreatePost(c.Request.Context(), community.CreatePostInput{
		CallerEmail: h.callerEmail(c),
		Title:       request.Title,
		Content:     request.Content,
		Category:    request.Category,
		Image:       request.Image,
		Rating:      request.Rating,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

type updatePostPayload struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Image    *string `json:"image"`
	Category *string `json:"category"`
	Rating   *int    `json:"rating"`
}

func (h *httpHandler) handleUpdatePost(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var request updatePostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.community.UpdatePost(c.Request.Context(), community.UpdatePostInput{
		CallerEmail: h.callerEmail(c),
		PostID:      postID,
		Title:       request.Title,
		Content:     request.Content,
		Image:       request.Image,
		Category:    request.Category,
		Rating:      request.Rating,
	}); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.community.DeletePost(c.Request.Context(), h.callerEmail(c), postID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	post, err := h.community.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	posts, err := h.community.ListPosts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *httpHandler) handleRecordView(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	viewCount, err := h.community.RecordPostView(c.Request.Context(), postID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "viewCount": viewCount})
}

type toggleLikePayload struct {
	IsLiked bool `json:"isLiked"`
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	postID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var request toggleLikePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	likeCount, err := h.community.ToggleLike(c.Request.Context(), community.ToggleLikeInput{
		CallerEmail: h.callerEmail(c),
		PostID:      postID,
		Liked:       request.IsLiked,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "likeCount": likeCount})
}

type addCommentPayload struct {
	PostID  int64  `json:"postId"`
	Content string `json:"content"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	var request addCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	comment, err := h.community.AddComment(c.Request.Context(), community.AddCommentInput{
		CallerEmail: h.callerEmail(c),
		PostID:      request.PostID,
		Content:     request.Content,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	commentID, err := strconv.ParseInt(c.Query("commentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.community.DeleteComment(c.Request.Context(), h.callerEmail(c), commentID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Query("postId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	comments, err := h.community.ListCommentsForPost(c.Request.Context(), postID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *httpHandler) handleGetAccount(c *gin.Context) {
	profile, err := h.community.GetUser(c.Request.Context(), h.callerEmail(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type updateAccountPayload struct {
	Nickname     *string `json:"nickname"`
	ProfileImage *string `json:"profileImage"`
	PhoneNumber  *string `json:"phoneNumber"`
}

func (h *httpHandler) handleUpdateAccount(c *gin.Context) {
	var request updateAccountPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	profile, err := h.community.UpdateUserProfile(c.Request.Context(), community.UpdateProfileInput{
		CallerEmail:  h.callerEmail(c),
		Nickname:     request.Nickname,
		ProfileImage: request.ProfileImage,
		PhoneNumber:  request.PhoneNumber,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": profile})
}

func (h *httpHandler) handleActivity(c *gin.Context) {
	summary, err := h.community.GetUserActivitySummary(c.Request.Context(), h.callerEmail(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleMemberPosts(c *gin.Context) {
	posts, err := h.community.ListPostsForUser(c.Request.Context(), h.callerEmail(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *httpHandler) handleMemberComments(c *gin.Context) {
	comments, err := h.community.ListCommentsForUser(c.Request.Context(), h.callerEmail(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *httpHandler) handleMemberLikes(c *gin.Context) {
	posts, err := h.community.ListLikedPostsForUser(c.Request.Context(), h.callerEmail(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *httpHandler) handleMemberRank(c *gin.Context) {
	rank, err := h.community.GetUserRank(c.Request.Context(), h.callerEmail(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rank)
}
