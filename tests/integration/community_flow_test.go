package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campvibe/backend/internal/community"
	"github.com/campvibe/backend/internal/server"
	"github.com/campvibe/backend/internal/storage"
	"github.com/gin-gonic/gin"
)

type client struct {
	t       *testing.T
	handler http.Handler
	email   string
}

func newHandler(t *testing.T) http.Handler {
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
	handler, err := server.NewHTTPHandler(server.Dependencies{Community: service})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return handler
}

func (c client) do(method, path string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()
	body := bytes.NewBuffer(nil)
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	}
	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if c.email != "" {
		request.Header.Set("X-User-Email", c.email)
	}
	recorder := httptest.NewRecorder()
	c.handler.ServeHTTP(recorder, request)
	return recorder
}

func (c client) doExpect(method, path string, payload any, wantStatus int, target any) {
	c.t.Helper()
	recorder := c.do(method, path, payload)
	if recorder.Code != wantStatus {
		c.t.Fatalf("%s %s returned %d, want %d: %s", method, path, recorder.Code, wantStatus, recorder.Body.String())
	}
	if target != nil {
		if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
			c.t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
}

func TestCommunityLifecycle(t *testing.T) {
	handler := newHandler(t)
	anonymous := client{t: t, handler: handler}
	ann := client{t: t, handler: handler, email: "ann@example.com"}
	bob := client{t: t, handler: handler, email: "bob@example.com"}

	anonymous.doExpect(http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "ann@example.com", "password": "ann-password", "nickname": "Ann",
	}, http.StatusCreated, nil)
	anonymous.doExpect(http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "bob@example.com", "password": "bob-password", "nickname": "Bob",
	}, http.StatusCreated, nil)

	var post community.Post
	ann.doExpect(http.MethodPost, "/api/community/posts", map[string]any{
		"title": "Best spots near the river", "content": "A writeup.", "category": community.CategoryInfoShare,
	}, http.StatusCreated, &post)
	if post.Author != "Ann" {
		t.Fatalf("expected author Ann, got %q", post.Author)
	}

	postPath := fmt.Sprintf("/api/community/posts/%d", post.PostID)

	var comment community.Comment
	bob.doExpect(http.MethodPost, "/api/community/comments", map[string]any{
		"postId": post.PostID, "content": "Thanks for sharing",
	}, http.StatusCreated, &comment)

	var likeResponse struct {
		LikeCount int `json:"likeCount"`
	}
	bob.doExpect(http.MethodPost, postPath+"/like", map[string]bool{"isLiked": true}, http.StatusOK, &likeResponse)
	if likeResponse.LikeCount != 1 {
		t.Fatalf("expected like count 1, got %d", likeResponse.LikeCount)
	}

	anonymous.doExpect(http.MethodPost, postPath+"/view", nil, http.StatusOK, nil)

	var enriched community.Post
	anonymous.doExpect(http.MethodGet, postPath, nil, http.StatusOK, &enriched)
	if enriched.CommentCount != 1 || enriched.LikeCount != 1 || enriched.ViewCount != 1 {
		t.Fatalf("unexpected counters %+v", enriched)
	}

	var bobActivity community.ActivitySummary
	bob.doExpect(http.MethodGet, "/api/members/activity", nil, http.StatusOK, &bobActivity)
	if bobActivity.Comments != 1 || bobActivity.Likes != 1 {
		t.Fatalf("unexpected activity for Bob %+v", bobActivity)
	}

	// Bob may not delete Ann's post.
	if recorder := bob.do(http.MethodDelete, postPath, nil); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for Bob, got %d", recorder.Code)
	}

	// Ann's delete cascades over Bob's comment and like.
	ann.doExpect(http.MethodDelete, postPath, nil, http.StatusOK, nil)

	if recorder := anonymous.do(http.MethodGet, postPath, nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", recorder.Code)
	}

	if recorder := anonymous.do(http.MethodGet, fmt.Sprintf("/api/community/comments?postId=%d", post.PostID), nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 listing comments of a deleted post, got %d", recorder.Code)
	}

	var bobComments []community.UserComment
	bob.doExpect(http.MethodGet, "/api/members/comments", nil, http.StatusOK, &bobComments)
	if len(bobComments) != 0 {
		t.Fatalf("expected Bob's comments cascaded away, got %d", len(bobComments))
	}

	bob.doExpect(http.MethodGet, "/api/members/activity", nil, http.StatusOK, &bobActivity)
	if bobActivity != (community.ActivitySummary{}) {
		t.Fatalf("expected Bob's activity reset after cascade, got %+v", bobActivity)
	}

	var annProfile community.Profile
	ann.doExpect(http.MethodGet, "/api/members/account", nil, http.StatusOK, &annProfile)
	if annProfile.Activity.BoardCount != 0 {
		t.Fatalf("expected Ann's board count back to 0, got %d", annProfile.Activity.BoardCount)
	}
}
