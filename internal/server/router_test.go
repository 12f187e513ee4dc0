package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campvibe/backend/internal/community"
	"github.com/campvibe/backend/internal/storage"
	"github.com/gin-gonic/gin"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewStore(storage.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	service, err := community.NewService(community.ServiceConfig{
		Store: store,
		Clock: time.Now,
		IDs:   community.NewMillisProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{Community: service})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, email string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if email != "" {
		request.Header.Set(userEmailHeader, email)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func signup(t *testing.T, handler http.Handler, email, nickname string) {
	t.Helper()
	recorder := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "secret-password",
		"nickname": nickname,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("signup for %s returned %d: %s", email, recorder.Code, recorder.Body.String())
	}
}

func createPost(t *testing.T, handler http.Handler, email string) community.Post {
	t.Helper()
	recorder := doJSON(t, handler, http.MethodPost, "/api/community/posts", email, map[string]any{
		"title":    "a post title",
		"content":  "some content",
		"category": community.CategoryInfoShare,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create post returned %d: %s", recorder.Code, recorder.Body.String())
	}
	var post community.Post
	decodeBody(t, recorder, &post)
	return post
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestMutationsRequireIdentityHeader(t *testing.T) {
	handler := newTestHandler(t)

	recorder := doJSON(t, handler, http.MethodPost, "/api/community/posts", "", map[string]any{
		"title": "t", "content": "c", "category": community.CategoryInfoShare,
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", recorder.Code)
	}
}

func TestSignupDuplicateReturnsConflict(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")

	recorder := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "ann@example.com",
		"password": "another-password",
		"nickname": "NotAnn",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", recorder.Code)
	}
}

func TestLogin(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")

	recorder := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ann@example.com",
		"password": "secret-password",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var profile community.Profile
	decodeBody(t, recorder, &profile)
	if profile.Nickname != "Ann" {
		t.Fatalf("expected profile for Ann, got %+v", profile)
	}

	recorder = doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ann@example.com",
		"password": "wrong-password",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", recorder.Code)
	}
}

func TestCheckDuplicate(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")

	recorder := doJSON(t, handler, http.MethodGet, "/api/auth/check-duplicate?type=email&value=ann@example.com", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var response struct {
		Available bool `json:"available"`
	}
	decodeBody(t, recorder, &response)
	if response.Available {
		t.Fatal("expected taken email to be unavailable")
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/auth/check-duplicate?type=nickname&value=Fresh", "", nil)
	decodeBody(t, recorder, &response)
	if !response.Available {
		t.Fatal("expected fresh nickname to be available")
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/auth/check-duplicate?type=phone&value=x", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", recorder.Code)
	}
}

func TestGetPostNotFound(t *testing.T) {
	handler := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/community/posts/12345", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/community/posts/not-a-number", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", recorder.Code)
	}
}

func TestDeletePostForbiddenForNonOwner(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")
	signup(t, handler, "bob@example.com", "Bob")
	post := createPost(t, handler, "ann@example.com")

	recorder := doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/community/posts/%d", post.PostID), "bob@example.com", nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/community/posts/%d", post.PostID), "ann@example.com", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner delete, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestLikeFlow(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")
	signup(t, handler, "bob@example.com", "Bob")
	post := createPost(t, handler, "ann@example.com")

	likePath := fmt.Sprintf("/api/community/posts/%d/like", post.PostID)
	recorder := doJSON(t, handler, http.MethodPost, likePath, "bob@example.com", map[string]bool{"isLiked": true})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var likeResponse struct {
		LikeCount int `json:"likeCount"`
	}
	decodeBody(t, recorder, &likeResponse)
	if likeResponse.LikeCount != 1 {
		t.Fatalf("expected like count 1, got %d", likeResponse.LikeCount)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/members/likes", "bob@example.com", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var liked []community.Post
	decodeBody(t, recorder, &liked)
	if len(liked) != 1 || liked[0].PostID != post.PostID {
		t.Fatalf("expected the liked post listed, got %+v", liked)
	}

	recorder = doJSON(t, handler, http.MethodPost, likePath, "bob@example.com", map[string]bool{"isLiked": false})
	decodeBody(t, recorder, &likeResponse)
	if likeResponse.LikeCount != 0 {
		t.Fatalf("expected like count 0 after unlike, got %d", likeResponse.LikeCount)
	}
}

func TestCommentFlow(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")
	signup(t, handler, "bob@example.com", "Bob")
	post := createPost(t, handler, "ann@example.com")

	recorder := doJSON(t, handler, http.MethodPost, "/api/community/comments", "bob@example.com", map[string]any{
		"postId":  post.PostID,
		"content": "nice write-up",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var comment community.Comment
	decodeBody(t, recorder, &comment)
	if comment.Author != "Bob" {
		t.Fatalf("expected author resolved to Bob, got %q", comment.Author)
	}

	recorder = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/community/comments?postId=%d", post.PostID), "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var comments []community.Comment
	decodeBody(t, recorder, &comments)
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}

	recorder = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/community/comments?commentId=%d", comment.CommentID), "ann@example.com", nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author comment delete, got %d", recorder.Code)
	}
	recorder = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/community/comments?commentId=%d", comment.CommentID), "bob@example.com", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for author comment delete, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRecordViewIncrements(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")
	post := createPost(t, handler, "ann@example.com")

	recorder := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/community/posts/%d/view", post.PostID), "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var response struct {
		ViewCount int `json:"viewCount"`
	}
	decodeBody(t, recorder, &response)
	if response.ViewCount != 1 {
		t.Fatalf("expected view count 1, got %d", response.ViewCount)
	}
}

func TestUpdateAccountRejectsTakenNickname(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")
	signup(t, handler, "bob@example.com", "Bob")

	nickname := "Ann"
	recorder := doJSON(t, handler, http.MethodPut, "/api/members/account", "bob@example.com", map[string]any{
		"nickname": nickname,
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for taken nickname, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestMemberRankDefaultsToBeginner(t *testing.T) {
	handler := newTestHandler(t)
	signup(t, handler, "ann@example.com", "Ann")

	recorder := doJSON(t, handler, http.MethodGet, "/api/members/rank", "ann@example.com", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var rank community.Rank
	decodeBody(t, recorder, &rank)
	if rank.CurrentRank != "Beginner" {
		t.Fatalf("expected Beginner rank, got %+v", rank)
	}
}

func TestMissingCommunityServiceRejected(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatal("expected an error without a community service")
	}
}
