package community

import (
	"context"
	"testing"
	"time"

	"github.com/campvibe/backend/internal/storage"
)

type seqIDProvider struct {
	next int64
}

func (p *seqIDProvider) NewID() int64 {
	p.next++
	return p.next
}

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(storage.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Store: store,
		Clock: func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) },
		IDs:   &seqIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, store
}

func mustCreateUser(t *testing.T, service *Service, email, nickname string) {
	t.Helper()
	err := service.CreateUser(context.Background(), CreateUserInput{
		Email:    email,
		Password: "secret-password",
		Nickname: nickname,
	})
	if err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
}

func mustCreatePost(t *testing.T, service *Service, email, category string) Post {
	t.Helper()
	post, err := service.CreatePost(context.Background(), CreatePostInput{
		CallerEmail: email,
		Title:       "a post title",
		Content:     "some content",
		Category:    category,
		Rating:      ratingFor(category),
	})
	if err != nil {
		t.Fatalf("failed to create post for %s: %v", email, err)
	}
	return post
}

func ratingFor(category string) int {
	if category == CategoryEquipmentReview {
		return 4
	}
	return 0
}

func mustGetUser(t *testing.T, service *Service, email string) Profile {
	t.Helper()
	profile, err := service.GetUser(context.Background(), email)
	if err != nil {
		t.Fatalf("failed to load user %s: %v", email, err)
	}
	return profile
}

func mustGetPost(t *testing.T, service *Service, postID int64) Post {
	t.Helper()
	post, err := service.GetPost(context.Background(), postID)
	if err != nil {
		t.Fatalf("failed to load post %d: %v", postID, err)
	}
	return post
}
