// Package community implements the post/comment/like/user domain on top of
// the collection store, including the denormalized-counter bookkeeping and
// orphan cleanup a relational backend would otherwise provide.
package community

import "errors"

// Failure taxonomy surfaced to external callers. Handlers map these onto
// HTTP status codes; nothing below this package leaks through the facade.
var (
	ErrNotFound  = errors.New("community: not found")
	ErrForbidden = errors.New("community: forbidden")
	ErrConflict  = errors.New("community: conflict")
	ErrInvalid   = errors.New("community: invalid input")
)

// Post categories match the values the client renders as tabs. Only the
// equipment review category carries a rating.
const (
	CategoryInfoShare       = "정보공유"
	CategoryFieldReport     = "후기"
	CategoryQuestion        = "질문"
	CategoryEquipmentReview = "캠핑장비 리뷰"
	CategoryCampsiteInfo    = "캠핑장 정보"
)

var validCategories = map[string]bool{
	CategoryInfoShare:       true,
	CategoryFieldReport:     true,
	CategoryQuestion:        true,
	CategoryEquipmentReview: true,
	CategoryCampsiteInfo:    true,
}

// IsValidCategory reports whether the category is one of the fixed set.
func IsValidCategory(category string) bool {
	return validCategories[category]
}

const (
	defaultProfileImage = "/image/default-profile.png"
	defaultRankImage    = "/image/rank-beginner.png"
)

// Rank is the embedded member grade progression snapshot.
type Rank struct {
	CurrentRank  string `json:"currentRank"`
	TotalPoints  int    `json:"totalPoints"`
	NextRank     string `json:"nextRank"`
	RemainPoints int    `json:"remainPoints"`
	RankImageURL string `json:"rankImageUrl"`
}

// DefaultRank is assigned at signup and used when a stored user predates
// rank tracking.
func DefaultRank() Rank {
	return Rank{
		CurrentRank:  "Beginner",
		TotalPoints:  0,
		NextRank:     "Silver",
		RemainPoints: 1000,
		RankImageURL: defaultRankImage,
	}
}

// Activity is the per-user denormalized counter set. The counts are a cache
// over the posts/comments/likes collections, never a source of truth.
type Activity struct {
	BoardCount   int `json:"boardCount"`
	CommentCount int `json:"commentCount"`
	ReviewCount  int `json:"reviewCount"`
	LikeCount    int `json:"likeCount"`
}

// User is keyed by email. Nickname is unique; Password holds a bcrypt hash.
type User struct {
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Nickname     string   `json:"nickname"`
	ProfileImage string   `json:"profileImage"`
	PhoneNumber  string   `json:"phoneNumber"`
	JoinDate     string   `json:"joinDate"`
	MemberGrade  string   `json:"memberGrade"`
	Rank         Rank     `json:"rank"`
	Activity     Activity `json:"activity"`
}

// Profile is a User stripped of the password hash for external return.
type Profile struct {
	Email        string   `json:"email"`
	Nickname     string   `json:"nickname"`
	ProfileImage string   `json:"profileImage"`
	PhoneNumber  string   `json:"phoneNumber"`
	JoinDate     string   `json:"joinDate"`
	MemberGrade  string   `json:"memberGrade"`
	Rank         Rank     `json:"rank"`
	Activity     Activity `json:"activity"`
}

// Profile returns the externally safe view of the user.
func (u User) Profile() Profile {
	return Profile{
		Email:        u.Email,
		Nickname:     u.Nickname,
		ProfileImage: u.ProfileImage,
		PhoneNumber:  u.PhoneNumber,
		JoinDate:     u.JoinDate,
		MemberGrade:  u.MemberGrade,
		Rank:         u.Rank,
		Activity:     u.Activity,
	}
}

// Post carries three denormalized counters. AuthorEmail is the authorization
// key; Author is the display nickname denormalized at write time.
type Post struct {
	PostID       int64  `json:"postId"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Category     string `json:"category"`
	Author       string `json:"author"`
	AuthorImage  string `json:"authorImage"`
	AuthorEmail  string `json:"authorEmail"`
	Image        string `json:"image,omitempty"`
	Rating       int    `json:"rating,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	ViewCount    int    `json:"viewCount"`
	CommentCount int    `json:"commentCount"`
	LikeCount    int    `json:"likeCount"`
}

// Comment references its parent Post by id only; the reference is not
// enforced by the store and orphans are swept on read.
type Comment struct {
	CommentID   int64  `json:"commentId"`
	PostID      int64  `json:"postId"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	AuthorImage string `json:"authorImage"`
	AuthorEmail string `json:"authorEmail"`
	CreatedAt   string `json:"createdAt"`
}

// Like is unique on (PostID, Email). Nickname is denormalized for display
// and refreshed from the user record at toggle time.
type Like struct {
	PostID    int64  `json:"postId"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	CreatedAt string `json:"createdAt"`
}

// ActivitySummary is the authoritative recount returned by the facade.
type ActivitySummary struct {
	Posts    int `json:"posts"`
	Reviews  int `json:"reviews"`
	Comments int `json:"comments"`
	Likes    int `json:"likes"`
}
