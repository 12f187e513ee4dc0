package community

import (
	"context"

	"github.com/campvibe/backend/internal/storage"
	"go.uber.org/zap"
)

// floorSub decrements with a floor of zero. Counters are caches and must
// never be observed negative, whatever the call ordering was.
func floorSub(count, delta int) int {
	if count-delta < 0 {
		return 0
	}
	return count - delta
}

// recountActivity derives a user's activity counters from the source
// collections. Comments and likes count only when their post still exists;
// this is the authoritative path the cached counters are checked against.
func recountActivity(email string, posts []Post, comments []Comment, likes []Like) Activity {
	livePostIDs := make(map[int64]bool, len(posts))
	var activity Activity

	for _, p := range posts {
		livePostIDs[p.PostID] = true
		if normalizeEmail(p.AuthorEmail) != email {
			continue
		}
		if p.Category == CategoryEquipmentReview {
			activity.ReviewCount++
		} else {
			activity.BoardCount++
		}
	}
	for _, c := range comments {
		if normalizeEmail(c.AuthorEmail) == email && livePostIDs[c.PostID] {
			activity.CommentCount++
		}
	}
	for _, l := range likes {
		if normalizeEmail(l.Email) == email && livePostIDs[l.PostID] {
			activity.LikeCount++
		}
	}
	return activity
}

// recountPostCounters rewrites a post's comment and like counters from the
// dependent collections. Returns true when either counter drifted.
func recountPostCounters(post *Post, comments []Comment, likes []Like) bool {
	commentCount := 0
	for _, c := range comments {
		if c.PostID == post.PostID {
			commentCount++
		}
	}
	likeCount := 0
	for _, l := range likes {
		if l.PostID == post.PostID {
			likeCount++
		}
	}

	changed := post.CommentCount != commentCount || post.LikeCount != likeCount
	post.CommentCount = commentCount
	post.LikeCount = likeCount
	return changed
}

// ReconcileReport summarizes a full consistency pass.
type ReconcileReport struct {
	OrphanComments int
	OrphanLikes    int
	PostsAdjusted  int
	UsersAdjusted  int
}

// Changed reports whether the pass rewrote anything.
func (r ReconcileReport) Changed() bool {
	return r.OrphanComments > 0 || r.OrphanLikes > 0 || r.PostsAdjusted > 0 || r.UsersAdjusted > 0
}

// ReconcileAll is the full materialized-view repair: it purges every orphan,
// recomputes every post's comment/like counters and every user's activity
// counters, and persists only the collections that drifted. Run from the
// reconcile CLI command or after a suspected partial cascade.
func (s *Service) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	report, err := s.reconcileAll(ctx)
	s.observe(opReconcileAll, err)
	return report, err
}

func (s *Service) reconcileAll(ctx context.Context) (ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report ReconcileReport

	users, posts, comments, likes, err := s.loadAll(ctx)
	if err != nil {
		return report, err
	}

	liveComments, droppedComments := dropOrphans(posts, comments, commentPostID)
	liveLikes, droppedLikes := dropOrphans(posts, likes, likePostID)
	report.OrphanComments = droppedComments
	report.OrphanLikes = droppedLikes

	for i := range posts {
		if recountPostCounters(&posts[i], liveComments, liveLikes) {
			report.PostsAdjusted++
		}
	}

	for i := range users {
		email := normalizeEmail(users[i].Email)
		authoritative := recountActivity(email, posts, liveComments, liveLikes)
		if users[i].Activity != authoritative {
			users[i].Activity = authoritative
			report.UsersAdjusted++
		}
	}

	if droppedComments > 0 {
		if err := storage.Save(s.store, storage.CollectionComments, liveComments); err != nil {
			return report, err
		}
	}
	if droppedLikes > 0 {
		if err := storage.Save(s.store, storage.CollectionLikes, liveLikes); err != nil {
			return report, err
		}
	}
	if report.PostsAdjusted > 0 {
		if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
			return report, err
		}
	}
	if report.UsersAdjusted > 0 {
		if err := storage.Save(s.store, storage.CollectionUsers, users); err != nil {
			return report, err
		}
	}

	if report.Changed() {
		s.logger.Info("reconcile pass repaired drift",
			zap.Int("orphan_comments", report.OrphanComments),
			zap.Int("orphan_likes", report.OrphanLikes),
			zap.Int("posts_adjusted", report.PostsAdjusted),
			zap.Int("users_adjusted", report.UsersAdjusted))
	}
	return report, nil
}
