package community

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campvibe/backend/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

var (
	errMissingStore      = errors.New("community: collection store is required")
	errMissingIDProvider = errors.New("community: id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opCreatePost       = "community.create_post"
	opUpdatePost       = "community.update_post"
	opDeletePost       = "community.delete_post"
	opGetPost          = "community.get_post"
	opListPosts        = "community.list_posts"
	opRecordPostView   = "community.record_post_view"
	opAddComment       = "community.add_comment"
	opDeleteComment    = "community.delete_comment"
	opListComments     = "community.list_comments_for_post"
	opToggleLike       = "community.toggle_like"
	opListLikedPosts   = "community.list_liked_posts"
	opListUserPosts    = "community.list_posts_for_user"
	opListUserComments = "community.list_comments_for_user"
	opActivitySummary  = "community.activity_summary"
	opCreateUser       = "community.create_user"
	opAuthenticate     = "community.authenticate"
	opGetUser          = "community.get_user"
	opUpdateProfile    = "community.update_profile"
	opGetUserRank      = "community.get_user_rank"
	opCheckDuplicate   = "community.check_duplicate"
	opReconcileAll     = "community.reconcile_all"
)

const (
	postDateLayout = "2006.1.2"
	joinDateLayout = "2006-01-02"
)

// MetricsRecorder receives per-operation and sweeper outcomes. A nil
// recorder disables reporting.
type MetricsRecorder interface {
	RecordOperation(operation, outcome string)
	RecordSweep(collection string, purged int)
}

// ServiceConfig describes the dependencies of the domain facade.
type ServiceConfig struct {
	Store   *storage.Store
	Clock   func() time.Time
	IDs     IDProvider
	Logger  *zap.Logger
	Metrics MetricsRecorder
}

// Service is the only surface external collaborators see. Every mutation is
// a read-all / mutate-in-memory / persist-all cycle serialized by a single
// mutex, so concurrent cascades never interleave half-updated collections.
type Service struct {
	store   *storage.Store
	clock   func() time.Time
	ids     IDProvider
	logger  *zap.Logger
	metrics MetricsRecorder

	mu sync.Mutex
}

// NewService constructs the domain facade.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDs == nil {
		return nil, errMissingIDProvider
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:   cfg.Store,
		clock:   clock,
		ids:     cfg.IDs,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// observe reports the operation outcome to metrics and logs failures.
func (s *Service) observe(operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrInvalid):
		outcome = "invalid"
	default:
		outcome = "error"
		s.logger.Error("community operation failed",
			zap.String("operation", operation),
			zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, outcome)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// loadAll reads the four collections concurrently, mirroring the parallel
// reads the cascade ordering requires before any mutation.
func (s *Service) loadAll(ctx context.Context) (users []User, posts []Post, comments []Comment, likes []Like, err error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { users, e = storage.Load[User](s.store, storage.CollectionUsers); return })
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	g.Go(func() (e error) { comments, e = storage.Load[Comment](s.store, storage.CollectionComments); return })
	g.Go(func() (e error) { likes, e = storage.Load[Like](s.store, storage.CollectionLikes); return })
	err = g.Wait()
	return
}

func findUser(users []User, email string) int {
	for i := range users {
		if normalizeEmail(users[i].Email) == email {
			return i
		}
	}
	return -1
}

func findPost(posts []Post, postID int64) int {
	for i := range posts {
		if posts[i].PostID == postID {
			return i
		}
	}
	return -1
}

// CreatePostInput carries caller-supplied post fields. The author nickname
// and profile image are resolved from the stored user, never trusted from
// the payload.
type CreatePostInput struct {
	CallerEmail string
	Title       string
	Content     string
	Category    string
	Image       string
	Rating      int
}

// CreatePost inserts a post and bumps the author's activity counters.
func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (Post, error) {
	post, err := s.createPost(ctx, in)
	s.observe(opCreatePost, err)
	return post, err
}

func (s *Service) createPost(ctx context.Context, in CreatePostInput) (Post, error) {
	caller := normalizeEmail(in.CallerEmail)
	if caller == "" {
		return Post{}, fmt.Errorf("%w: caller email is required", ErrInvalid)
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return Post{}, fmt.Errorf("%w: title and content are required", ErrInvalid)
	}
	if !IsValidCategory(in.Category) {
		return Post{}, fmt.Errorf("%w: unknown category %q", ErrInvalid, in.Category)
	}
	if in.Category == CategoryEquipmentReview && (in.Rating < 1 || in.Rating > 5) {
		return Post{}, fmt.Errorf("%w: review rating must be 1-5", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var users []User
	var posts []Post
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { users, e = storage.Load[User](s.store, storage.CollectionUsers); return })
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	if err := g.Wait(); err != nil {
		return Post{}, err
	}

	userIdx := findUser(users, caller)
	if userIdx < 0 {
		return Post{}, fmt.Errorf("%w: unknown author %s", ErrInvalid, caller)
	}
	author := users[userIdx]

	rating := 0
	if in.Category == CategoryEquipmentReview {
		rating = in.Rating
	}

	post := Post{
		PostID:      s.ids.NewID(),
		Title:       in.Title,
		Content:     in.Content,
		Category:    in.Category,
		Author:      author.Nickname,
		AuthorImage: authorImageOrDefault(author.ProfileImage),
		AuthorEmail: caller,
		Image:       in.Image,
		Rating:      rating,
		CreatedAt:   s.clock().Format(postDateLayout),
	}
	posts = append([]Post{post}, posts...)

	users[userIdx].Activity.BoardCount++
	if in.Category == CategoryEquipmentReview {
		users[userIdx].Activity.ReviewCount++
	}

	if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
		return Post{}, err
	}
	if err := storage.Save(s.store, storage.CollectionUsers, users); err != nil {
		return Post{}, err
	}
	return post, nil
}

func authorImageOrDefault(image string) string {
	if strings.TrimSpace(image) == "" {
		return defaultProfileImage
	}
	return image
}

// UpdatePostInput applies only whitelisted fields; nil pointers leave the
// stored value untouched.
type UpdatePostInput struct {
	CallerEmail string
	PostID      int64
	Title       *string
	Content     *string
	Image       *string
	Category    *string
	Rating      *int
}

// UpdatePost edits a post in place. Counters are unaffected.
func (s *Service) UpdatePost(ctx context.Context, in UpdatePostInput) error {
	err := s.updatePost(ctx, in)
	s.observe(opUpdatePost, err)
	return err
}

func (s *Service) updatePost(_ context.Context, in UpdatePostInput) error {
	caller := normalizeEmail(in.CallerEmail)
	if caller == "" {
		return fmt.Errorf("%w: caller email is required", ErrInvalid)
	}
	if in.Category != nil && !IsValidCategory(*in.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, *in.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := storage.Load[Post](s.store, storage.CollectionPosts)
	if err != nil {
		return err
	}
	idx := findPost(posts, in.PostID)
	if idx < 0 {
		return fmt.Errorf("%w: post %d", ErrNotFound, in.PostID)
	}
	if normalizeEmail(posts[idx].AuthorEmail) != caller {
		return fmt.Errorf("%w: post %d is not owned by %s", ErrForbidden, in.PostID, caller)
	}

	post := posts[idx]
	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Image != nil {
		post.Image = *in.Image
	}
	if in.Category != nil {
		post.Category = *in.Category
	}
	if post.Category == CategoryEquipmentReview {
		if in.Rating != nil {
			if *in.Rating < 1 || *in.Rating > 5 {
				return fmt.Errorf("%w: review rating must be 1-5", ErrInvalid)
			}
			post.Rating = *in.Rating
		}
	} else {
		// Rating only exists on equipment reviews.
		post.Rating = 0
	}
	post.UpdatedAt = s.clock().Format(postDateLayout)
	posts[idx] = post

	return storage.Save(s.store, storage.CollectionPosts, posts)
}

// DeletePost removes a post and cascades over comments, likes, and the
// author's activity counters.
func (s *Service) DeletePost(ctx context.Context, callerEmail string, postID int64) error {
	err := s.deletePost(ctx, callerEmail, postID)
	s.observe(opDeletePost, err)
	return err
}

func (s *Service) deletePost(ctx context.Context, callerEmail string, postID int64) error {
	caller := normalizeEmail(callerEmail)
	if caller == "" {
		return fmt.Errorf("%w: caller email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, posts, comments, likes, err := s.loadAll(ctx)
	if err != nil {
		return err
	}

	idx := findPost(posts, postID)
	if idx < 0 {
		return fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	target := posts[idx]
	if normalizeEmail(target.AuthorEmail) != caller {
		return fmt.Errorf("%w: post %d is not owned by %s", ErrForbidden, postID, caller)
	}

	posts = append(posts[:idx], posts[idx+1:]...)

	keptComments := comments[:0:0]
	for _, c := range comments {
		if c.PostID != postID {
			keptComments = append(keptComments, c)
		}
	}

	likesOnPost := 0
	keptLikes := likes[:0:0]
	for _, l := range likes {
		if l.PostID == postID {
			likesOnPost++
			continue
		}
		keptLikes = append(keptLikes, l)
	}

	if userIdx := findUser(users, caller); userIdx >= 0 {
		activity := &users[userIdx].Activity
		activity.BoardCount = floorSub(activity.BoardCount, 1)
		if target.Category == CategoryEquipmentReview {
			activity.ReviewCount = floorSub(activity.ReviewCount, 1)
		}
		// Likes received on the deleted post come off the author's cached
		// like counter; the likers' own counters are repaired lazily by the
		// sweeper and the authoritative recount.
		activity.LikeCount = floorSub(activity.LikeCount, likesOnPost)
	}

	if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
		return err
	}
	if err := storage.Save(s.store, storage.CollectionComments, keptComments); err != nil {
		return err
	}
	if err := storage.Save(s.store, storage.CollectionLikes, keptLikes); err != nil {
		return err
	}
	return storage.Save(s.store, storage.CollectionUsers, users)
}

// GetPost returns a single post by id.
func (s *Service) GetPost(ctx context.Context, postID int64) (Post, error) {
	post, err := s.getPost(ctx, postID)
	s.observe(opGetPost, err)
	return post, err
}

func (s *Service) getPost(_ context.Context, postID int64) (Post, error) {
	posts, err := storage.Load[Post](s.store, storage.CollectionPosts)
	if err != nil {
		return Post{}, err
	}
	idx := findPost(posts, postID)
	if idx < 0 {
		return Post{}, fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	return posts[idx], nil
}

// ListPosts returns every post, newest first.
func (s *Service) ListPosts(ctx context.Context) ([]Post, error) {
	posts, err := s.listPosts(ctx)
	s.observe(opListPosts, err)
	return posts, err
}

func (s *Service) listPosts(_ context.Context) ([]Post, error) {
	posts, err := storage.Load[Post](s.store, storage.CollectionPosts)
	if err != nil {
		return nil, err
	}
	sortPostsByRecency(posts)
	return posts, nil
}

func sortPostsByRecency(posts []Post) {
	sort.Slice(posts, func(i, j int) bool { return posts[i].PostID > posts[j].PostID })
}

// RecordPostView bumps the view counter and returns the new value.
func (s *Service) RecordPostView(ctx context.Context, postID int64) (int, error) {
	count, err := s.recordPostView(ctx, postID)
	s.observe(opRecordPostView, err)
	return count, err
}

func (s *Service) recordPostView(_ context.Context, postID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := storage.Load[Post](s.store, storage.CollectionPosts)
	if err != nil {
		return 0, err
	}
	idx := findPost(posts, postID)
	if idx < 0 {
		return 0, fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	posts[idx].ViewCount++
	if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
		return 0, err
	}
	return posts[idx].ViewCount, nil
}

// AddCommentInput carries caller-supplied comment fields.
type AddCommentInput struct {
	CallerEmail string
	PostID      int64
	Content     string
}

// AddComment inserts a comment and bumps the post and commenter counters.
func (s *Service) AddComment(ctx context.Context, in AddCommentInput) (Comment, error) {
	comment, err := s.addComment(ctx, in)
	s.observe(opAddComment, err)
	return comment, err
}

func (s *Service) addComment(ctx context.Context, in AddCommentInput) (Comment, error) {
	caller := normalizeEmail(in.CallerEmail)
	if caller == "" {
		return Comment{}, fmt.Errorf("%w: caller email is required", ErrInvalid)
	}
	if strings.TrimSpace(in.Content) == "" {
		return Comment{}, fmt.Errorf("%w: comment content is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var users []User
	var posts []Post
	var comments []Comment
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { users, e = storage.Load[User](s.store, storage.CollectionUsers); return })
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	g.Go(func() (e error) { comments, e = storage.Load[Comment](s.store, storage.CollectionComments); return })
	if err := g.Wait(); err != nil {
		return Comment{}, err
	}

	postIdx := findPost(posts, in.PostID)
	if postIdx < 0 {
		return Comment{}, fmt.Errorf("%w: post %d", ErrNotFound, in.PostID)
	}
	userIdx := findUser(users, caller)
	if userIdx < 0 {
		return Comment{}, fmt.Errorf("%w: unknown commenter %s", ErrInvalid, caller)
	}
	commenter := users[userIdx]

	comment := Comment{
		CommentID:   s.ids.NewID(),
		PostID:      in.PostID,
		Content:     in.Content,
		Author:      commenter.Nickname,
		AuthorImage: authorImageOrDefault(commenter.ProfileImage),
		AuthorEmail: caller,
		CreatedAt:   s.clock().Format(postDateLayout),
	}
	comments = append([]Comment{comment}, comments...)

	posts[postIdx].CommentCount++
	users[userIdx].Activity.CommentCount++

	if err := storage.Save(s.store, storage.CollectionComments, comments); err != nil {
		return Comment{}, err
	}
	if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
		return Comment{}, err
	}
	if err := storage.Save(s.store, storage.CollectionUsers, users); err != nil {
		return Comment{}, err
	}
	return comment, nil
}

// DeleteComment removes a comment and decrements the post and author
// counters. The post decrement is a no-op when the parent is already gone.
func (s *Service) DeleteComment(ctx context.Context, callerEmail string, commentID int64) error {
	err := s.deleteComment(ctx, callerEmail, commentID)
	s.observe(opDeleteComment, err)
	return err
}

func (s *Service) deleteComment(ctx context.Context, callerEmail string, commentID int64) error {
	caller := normalizeEmail(callerEmail)
	if caller == "" {
		return fmt.Errorf("%w: caller email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var users []User
	var posts []Post
	var comments []Comment
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { users, e = storage.Load[User](s.store, storage.CollectionUsers); return })
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	g.Go(func() (e error) { comments, e = storage.Load[Comment](s.store, storage.CollectionComments); return })
	if err := g.Wait(); err != nil {
		return err
	}

	targetIdx := -1
	for i := range comments {
		if comments[i].CommentID == commentID {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
	}
	target := comments[targetIdx]
	if normalizeEmail(target.AuthorEmail) != caller {
		return fmt.Errorf("%w: comment %d is not owned by %s", ErrForbidden, commentID, caller)
	}

	comments = append(comments[:targetIdx], comments[targetIdx+1:]...)

	if postIdx := findPost(posts, target.PostID); postIdx >= 0 {
		posts[postIdx].CommentCount = floorSub(posts[postIdx].CommentCount, 1)
	}
	if userIdx := findUser(users, caller); userIdx >= 0 {
		users[userIdx].Activity.CommentCount = floorSub(users[userIdx].Activity.CommentCount, 1)
	}

	if err := storage.Save(s.store, storage.CollectionComments, comments); err != nil {
		return err
	}
	if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
		return err
	}
	return storage.Save(s.store, storage.CollectionUsers, users)
}

// ListCommentsForPost returns the live comments of a post, newest first,
// sweeping orphans beforehand.
func (s *Service) ListCommentsForPost(ctx context.Context, postID int64) ([]Comment, error) {
	comments, err := s.listCommentsForPost(ctx, postID)
	s.observe(opListComments, err)
	return comments, err
}

func (s *Service) listCommentsForPost(ctx context.Context, postID int64) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, comments, err := s.sweepComments(ctx)
	if err != nil {
		return nil, err
	}
	if findPost(posts, postID) < 0 {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}

	matched := make([]Comment, 0)
	for _, c := range comments {
		if c.PostID == postID {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CommentID > matched[j].CommentID })
	return matched, nil
}

// ToggleLikeInput requests a desired like state for (post, caller).
type ToggleLikeInput struct {
	CallerEmail string
	PostID      int64
	Liked       bool
}

// ToggleLike moves the caller's like to the requested state and returns the
// post's like count. Requesting the current state is a no-op with no writes.
func (s *Service) ToggleLike(ctx context.Context, in ToggleLikeInput) (int, error) {
	count, err := s.toggleLike(ctx, in)
	s.observe(opToggleLike, err)
	return count, err
}

func (s *Service) toggleLike(ctx context.Context, in ToggleLikeInput) (int, error) {
	caller := normalizeEmail(in.CallerEmail)
	if caller == "" {
		return 0, fmt.Errorf("%w: caller email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var users []User
	var posts []Post
	var likes []Like
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (e error) { users, e = storage.Load[User](s.store, storage.CollectionUsers); return })
	g.Go(func() (e error) { posts, e = storage.Load[Post](s.store, storage.CollectionPosts); return })
	g.Go(func() (e error) { likes, e = storage.Load[Like](s.store, storage.CollectionLikes); return })
	if err := g.Wait(); err != nil {
		return 0, err
	}

	postIdx := findPost(posts, in.PostID)
	if postIdx < 0 {
		return 0, fmt.Errorf("%w: post %d", ErrNotFound, in.PostID)
	}
	userIdx := findUser(users, caller)
	if userIdx < 0 {
		return 0, fmt.Errorf("%w: unknown caller %s", ErrInvalid, caller)
	}

	likeIdx := -1
	for i := range likes {
		if likes[i].PostID == in.PostID && normalizeEmail(likes[i].Email) == caller {
			likeIdx = i
			break
		}
	}

	switch {
	case in.Liked && likeIdx < 0:
		like := Like{
			PostID:    in.PostID,
			Email:     caller,
			Nickname:  users[userIdx].Nickname,
			CreatedAt: s.clock().UTC().Format(time.RFC3339),
		}
		likes = append([]Like{like}, likes...)
		posts[postIdx].LikeCount++
		users[userIdx].Activity.LikeCount++
	case !in.Liked && likeIdx >= 0:
		likes = append(likes[:likeIdx], likes[likeIdx+1:]...)
		posts[postIdx].LikeCount = floorSub(posts[postIdx].LikeCount, 1)
		users[userIdx].Activity.LikeCount = floorSub(users[userIdx].Activity.LikeCount, 1)
	default:
		// Already in the requested state.
		return posts[postIdx].LikeCount, nil
	}

	if err := storage.Save(s.store, storage.CollectionPosts, posts); err != nil {
		return 0, err
	}
	if err := storage.Save(s.store, storage.CollectionLikes, likes); err != nil {
		return 0, err
	}
	if err := storage.Save(s.store, storage.CollectionUsers, users); err != nil {
		return 0, err
	}
	return posts[postIdx].LikeCount, nil
}

// ListLikedPostsForUser returns the posts the user has liked, newest first,
// sweeping orphaned likes beforehand.
func (s *Service) ListLikedPostsForUser(ctx context.Context, email string) ([]Post, error) {
	posts, err := s.listLikedPostsForUser(ctx, email)
	s.observe(opListLikedPosts, err)
	return posts, err
}

func (s *Service) listLikedPostsForUser(ctx context.Context, email string) ([]Post, error) {
	caller := normalizeEmail(email)
	if caller == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posts, likes, err := s.sweepLikes(ctx)
	if err != nil {
		return nil, err
	}

	likedIDs := make(map[int64]bool)
	for _, l := range likes {
		if normalizeEmail(l.Email) == caller {
			likedIDs[l.PostID] = true
		}
	}

	liked := make([]Post, 0, len(likedIDs))
	for _, p := range posts {
		if likedIDs[p.PostID] {
			liked = append(liked, p)
		}
	}
	sortPostsByRecency(liked)
	return liked, nil
}

// ListPostsForUser returns the posts authored by the user, newest first.
func (s *Service) ListPostsForUser(ctx context.Context, email string) ([]Post, error) {
	posts, err := s.listPostsForUser(ctx, email)
	s.observe(opListUserPosts, err)
	return posts, err
}

func (s *Service) listPostsForUser(_ context.Context, email string) ([]Post, error) {
	caller := normalizeEmail(email)
	if caller == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalid)
	}

	posts, err := storage.Load[Post](s.store, storage.CollectionPosts)
	if err != nil {
		return nil, err
	}
	mine := make([]Post, 0)
	for _, p := range posts {
		if normalizeEmail(p.AuthorEmail) == caller {
			mine = append(mine, p)
		}
	}
	sortPostsByRecency(mine)
	return mine, nil
}

// UserComment is a comment joined with its parent post's title for the
// my-comments listing. Orphans are swept first, so the parent always exists.
type UserComment struct {
	Comment
	PostTitle string `json:"postTitle"`
}

// ListCommentsForUser returns the user's comments enriched with the parent
// post title, newest first.
func (s *Service) ListCommentsForUser(ctx context.Context, email string) ([]UserComment, error) {
	comments, err := s.listCommentsForUser(ctx, email)
	s.observe(opListUserComments, err)
	return comments, err
}

func (s *Service) listCommentsForUser(ctx context.Context, email string) ([]UserComment, error) {
	caller := normalizeEmail(email)
	if caller == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posts, comments, err := s.sweepComments(ctx)
	if err != nil {
		return nil, err
	}

	titles := make(map[int64]string, len(posts))
	for _, p := range posts {
		titles[p.PostID] = p.Title
	}

	mine := make([]UserComment, 0)
	for _, c := range comments {
		if normalizeEmail(c.AuthorEmail) != caller {
			continue
		}
		mine = append(mine, UserComment{Comment: c, PostTitle: titles[c.PostID]})
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CommentID > mine[j].CommentID })
	return mine, nil
}

// GetUserActivitySummary sweeps orphans, recounts the user's activity from
// the source collections, and heals the cached counters when they drifted.
func (s *Service) GetUserActivitySummary(ctx context.Context, email string) (ActivitySummary, error) {
	summary, err := s.getUserActivitySummary(ctx, email)
	s.observe(opActivitySummary, err)
	return summary, err
}

func (s *Service) getUserActivitySummary(ctx context.Context, email string) (ActivitySummary, error) {
	caller := normalizeEmail(email)
	if caller == "" {
		return ActivitySummary{}, fmt.Errorf("%w: email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, posts, comments, likes, err := s.loadAll(ctx)
	if err != nil {
		return ActivitySummary{}, err
	}

	comments, likes, err = s.sweepLoaded(posts, comments, likes)
	if err != nil {
		return ActivitySummary{}, err
	}

	activity := recountActivity(caller, posts, comments, likes)

	// The recount is authoritative: rewrite the cached counters on drift.
	if idx := findUser(users, caller); idx >= 0 && users[idx].Activity != activity {
		users[idx].Activity = activity
		if err := storage.Save(s.store, storage.CollectionUsers, users); err != nil {
			return ActivitySummary{}, err
		}
	}

	return ActivitySummary{
		Posts:    activity.BoardCount,
		Reviews:  activity.ReviewCount,
		Comments: activity.CommentCount,
		Likes:    activity.LikeCount,
	}, nil
}

// CreateUserInput carries signup fields.
type CreateUserInput struct {
	Email    string
	Password string
	Nickname string
}

// CreateUser registers a new member. Email and nickname must be unique.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) error {
	err := s.createUser(ctx, in)
	s.observe(opCreateUser, err)
	return err
}

func (s *Service) createUser(_ context.Context, in CreateUserInput) error {
	email := normalizeEmail(in.Email)
	nickname := strings.TrimSpace(in.Nickname)
	if email == "" || in.Password == "" || nickname == "" {
		return fmt.Errorf("%w: email, password, and nickname are required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := storage.Load[User](s.store, storage.CollectionUsers)
	if err != nil {
		return err
	}
	for _, u := range users {
		if normalizeEmail(u.Email) == email {
			return fmt.Errorf("%w: email %s already registered", ErrConflict, email)
		}
		if u.Nickname == nickname {
			return fmt.Errorf("%w: nickname %s already taken", ErrConflict, nickname)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("community: hash password: %w", err)
	}

	users = append(users, User{
		Email:        email,
		Password:     string(hash),
		Nickname:     nickname,
		ProfileImage: defaultProfileImage,
		JoinDate:     s.clock().Format(joinDateLayout),
		MemberGrade:  "Beginner",
		Rank:         DefaultRank(),
	})

	return storage.Save(s.store, storage.CollectionUsers, users)
}

// Authenticate verifies the credentials and returns the profile. Both an
// unknown email and a wrong password fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Profile, error) {
	profile, err := s.authenticate(ctx, email, password)
	s.observe(opAuthenticate, err)
	return profile, err
}

func (s *Service) authenticate(_ context.Context, email, password string) (Profile, error) {
	caller := normalizeEmail(email)
	if caller == "" || password == "" {
		return Profile{}, fmt.Errorf("%w: email and password are required", ErrInvalid)
	}

	users, err := storage.Load[User](s.store, storage.CollectionUsers)
	if err != nil {
		return Profile{}, err
	}
	idx := findUser(users, caller)
	if idx < 0 {
		return Profile{}, fmt.Errorf("%w: invalid credentials", ErrForbidden)
	}
	if bcrypt.CompareHashAndPassword([]byte(users[idx].Password), []byte(password)) != nil {
		return Profile{}, fmt.Errorf("%w: invalid credentials", ErrForbidden)
	}
	return users[idx].Profile(), nil
}

// GetUser returns the profile for the given email.
func (s *Service) GetUser(ctx context.Context, email string) (Profile, error) {
	profile, err := s.getUser(ctx, email)
	s.observe(opGetUser, err)
	return profile, err
}

func (s *Service) getUser(_ context.Context, email string) (Profile, error) {
	caller := normalizeEmail(email)
	if caller == "" {
		return Profile{}, fmt.Errorf("%w: email is required", ErrInvalid)
	}

	users, err := storage.Load[User](s.store, storage.CollectionUsers)
	if err != nil {
		return Profile{}, err
	}
	idx := findUser(users, caller)
	if idx < 0 {
		return Profile{}, fmt.Errorf("%w: user %s", ErrNotFound, caller)
	}
	return users[idx].Profile(), nil
}

// UpdateProfileInput applies only whitelisted profile fields. The email is
// pinned to the caller and can never change.
type UpdateProfileInput struct {
	CallerEmail  string
	Nickname     *string
	ProfileImage *string
	PhoneNumber  *string
}

// UpdateUserProfile edits the caller's profile and returns the result.
func (s *Service) UpdateUserProfile(ctx context.Context, in UpdateProfileInput) (Profile, error) {
	profile, err := s.updateUserProfile(ctx, in)
	s.observe(opUpdateProfile, err)
	return profile, err
}

func (s *Service) updateUserProfile(_ context.Context, in UpdateProfileInput) (Profile, error) {
	caller := normalizeEmail(in.CallerEmail)
	if caller == "" {
		return Profile{}, fmt.Errorf("%w: caller email is required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := storage.Load[User](s.store, storage.CollectionUsers)
	if err != nil {
		return Profile{}, err
	}
	idx := findUser(users, caller)
	if idx < 0 {
		return Profile{}, fmt.Errorf("%w: user %s", ErrNotFound, caller)
	}

	if in.Nickname != nil {
		nickname := strings.TrimSpace(*in.Nickname)
		if nickname == "" {
			return Profile{}, fmt.Errorf("%w: nickname cannot be empty", ErrInvalid)
		}
		for i, u := range users {
			if i != idx && u.Nickname == nickname {
				return Profile{}, fmt.Errorf("%w: nickname %s already taken", ErrConflict, nickname)
			}
		}
		users[idx].Nickname = nickname
	}
	if in.ProfileImage != nil {
		users[idx].ProfileImage = *in.ProfileImage
	}
	if in.PhoneNumber != nil {
		users[idx].PhoneNumber = *in.PhoneNumber
	}

	if err := storage.Save(s.store, storage.CollectionUsers, users); err != nil {
		return Profile{}, err
	}
	return users[idx].Profile(), nil
}

// GetUserRank returns the member's rank, falling back to the default grade
// for unknown users or records predating rank tracking.
func (s *Service) GetUserRank(ctx context.Context, email string) (Rank, error) {
	rank, err := s.getUserRank(ctx, email)
	s.observe(opGetUserRank, err)
	return rank, err
}

func (s *Service) getUserRank(_ context.Context, email string) (Rank, error) {
	caller := normalizeEmail(email)
	if caller == "" {
		return Rank{}, fmt.Errorf("%w: email is required", ErrInvalid)
	}

	users, err := storage.Load[User](s.store, storage.CollectionUsers)
	if err != nil {
		return Rank{}, err
	}
	idx := findUser(users, caller)
	if idx < 0 || users[idx].Rank.CurrentRank == "" {
		return DefaultRank(), nil
	}
	return users[idx].Rank, nil
}

// CheckDuplicate reports whether the value is still available for the given
// field ("email" or "nickname").
func (s *Service) CheckDuplicate(ctx context.Context, field, value string) (bool, error) {
	available, err := s.checkDuplicate(ctx, field, value)
	s.observe(opCheckDuplicate, err)
	return available, err
}

func (s *Service) checkDuplicate(_ context.Context, field, value string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, fmt.Errorf("%w: value is required", ErrInvalid)
	}

	users, err := storage.Load[User](s.store, storage.CollectionUsers)
	if err != nil {
		return false, err
	}

	switch field {
	case "email":
		email := normalizeEmail(value)
		for _, u := range users {
			if normalizeEmail(u.Email) == email {
				return false, nil
			}
		}
	case "nickname":
		nickname := strings.TrimSpace(value)
		for _, u := range users {
			if u.Nickname == nickname {
				return false, nil
			}
		}
	default:
		return false, fmt.Errorf("%w: unknown field %q", ErrInvalid, field)
	}
	return true, nil
}
