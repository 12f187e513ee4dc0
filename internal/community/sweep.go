package community

import (
	"context"

	"github.com/campvibe/backend/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The sweeper is lazy garbage collection for ghost records: comments and
// likes whose post was deleted out from under them by a partial cascade.
// It runs on read paths that surface those collections, removes the
// orphans, and persists the cleaned collection so the drift does not
// reappear on the next read.

func commentPostID(c Comment) int64 { return c.PostID }
func likePostID(l Like) int64       { return l.PostID }

// dropOrphans keeps only the records whose post still exists. The second
// return is the number of orphans dropped.
func dropOrphans[T any](posts []Post, records []T, postID func(T) int64) ([]T, int) {
	livePostIDs := make(map[int64]bool, len(posts))
	for _, p := range posts {
		livePostIDs[p.PostID] = true
	}

	kept := records[:0:0]
	for _, r := range records {
		if livePostIDs[postID(r)] {
			kept = append(kept, r)
		}
	}
	return kept, len(records) - len(kept)
}

// sweepComments loads posts and comments, purges orphaned comments, and
// persists the cleaned collection when anything was dropped. Callers must
// hold the service mutex.
func (s *Service) sweepComments(ctx context.Context) ([]Post, []Comment, error) {
	var posts []Post
	var comments []Comment
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	g.Go(func() (e error) { comments, e = storage.Load[Comment](s.store, storage.CollectionComments); return })
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	kept, dropped := dropOrphans(posts, comments, commentPostID)
	if dropped > 0 {
		if err := storage.Save(s.store, storage.CollectionComments, kept); err != nil {
			return nil, nil, err
		}
		s.recordSweep(storage.CollectionComments, dropped)
	}
	return posts, kept, nil
}

// sweepLikes is the like-side counterpart of sweepComments.
func (s *Service) sweepLikes(ctx context.Context) ([]Post, []Like, error) {
	var posts []Post
	var likes []Like
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	g.Go(func() (e error) { likes, e = storage.Load[Like](s.store, storage.CollectionLikes); return })
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	kept, dropped := dropOrphans(posts, likes, likePostID)
	if dropped > 0 {
		if err := storage.Save(s.store, storage.CollectionLikes, kept); err != nil {
			return nil, nil, err
		}
		s.recordSweep(storage.CollectionLikes, dropped)
	}
	return posts, kept, nil
}

// sweepLoaded purges orphans from already-loaded comments and likes,
// persisting whichever collection had ghosts. Callers must hold the service
// mutex and have loaded the slices under it.
func (s *Service) sweepLoaded(posts []Post, comments []Comment, likes []Like) ([]Comment, []Like, error) {
	keptComments, droppedComments := dropOrphans(posts, comments, commentPostID)
	if droppedComments > 0 {
		if err := storage.Save(s.store, storage.CollectionComments, keptComments); err != nil {
			return nil, nil, err
		}
		s.recordSweep(storage.CollectionComments, droppedComments)
	}

	keptLikes, droppedLikes := dropOrphans(posts, likes, likePostID)
	if droppedLikes > 0 {
		if err := storage.Save(s.store, storage.CollectionLikes, keptLikes); err != nil {
			return nil, nil, err
		}
		s.recordSweep(storage.CollectionLikes, droppedLikes)
	}
	return keptComments, keptLikes, nil
}

func (s *Service) recordSweep(collection storage.Collection, dropped int) {
	s.logger.Info("swept orphaned records",
		zap.String("collection", string(collection)),
		zap.Int("dropped", dropped))
	if s.metrics != nil {
		s.metrics.RecordSweep(string(collection), dropped)
	}
}
