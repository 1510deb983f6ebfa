// Package models contains data structures for the application's domain models.
package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// MaxPostTextLength is the maximum number of characters allowed in a post body.
	MaxPostTextLength = 2000

	DefaultCommentAuthorName   = "User"
	DefaultCommentAuthorAvatar = "/avatar-placeholder.png"
)

// Post is the aggregate root for a feed entry. It owns its comments and the
// membership sets of users who liked, reposted or reported it. Reporter
// identities never leave the server; clients only see the Reports count.
type Post struct {
	ID          string                       `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	AuthorID    string                       `gorm:"not null;index" bson:"authorId" json:"authorId"`
	AuthorEmail string                       `gorm:"index" bson:"authorEmail,omitempty" json:"authorEmail,omitempty"`
	Text        string                       `gorm:"type:text" bson:"text" json:"text"`
	ImageURL    string                       `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	ImageFileID string                       `bson:"imageFileId,omitempty" json:"imageFileId,omitempty"`
	Likes       datatypes.JSONSlice[string]  `bson:"likes" json:"likes"`
	Reposts     datatypes.JSONSlice[string]  `bson:"reposts" json:"reposts"`
	Views       int64                        `gorm:"not null;default:0" bson:"views" json:"views"`
	Reports     int                          `gorm:"not null;default:0;index" bson:"reports" json:"reports"`
	ReportedBy  datatypes.JSONSlice[string]  `bson:"reportedBy" json:"-"`
	Comments    datatypes.JSONSlice[Comment] `bson:"comments" json:"comments"`
	CreatedAt   time.Time                    `gorm:"index" bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time                    `bson:"updatedAt" json:"updatedAt"`
}

// Comment is an append-only reply embedded in a Post. Author fields are a
// snapshot taken when the comment was written.
type Comment struct {
	ID           string    `bson:"id" json:"id"`
	Text         string    `bson:"text" json:"text"`
	AuthorEmail  string    `bson:"authorEmail" json:"authorEmail"`
	AuthorName   string    `bson:"authorName" json:"authorName"`
	AuthorAvatar string    `bson:"authorAvatar" json:"authorAvatar"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// BeforeCreate assigns an id and initializes empty collections so they are
// stored as JSON arrays rather than null.
func (p *Post) BeforeCreate(_ *gorm.DB) error {
	p.Prepare()
	return nil
}

// Prepare fills in the id and empty collections of a new post.
func (p *Post) Prepare() {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Likes == nil {
		p.Likes = datatypes.JSONSlice[string]{}
	}
	if p.Reposts == nil {
		p.Reposts = datatypes.JSONSlice[string]{}
	}
	if p.ReportedBy == nil {
		p.ReportedBy = datatypes.JSONSlice[string]{}
	}
	if p.Comments == nil {
		p.Comments = datatypes.JSONSlice[Comment]{}
	}
}

// IsOwnedBy reports whether email identifies the author of the post.
func (p *Post) IsOwnedBy(email string) bool {
	email = normalizeEmail(email)
	return email != "" && normalizeEmail(p.AuthorEmail) == email
}

// HasLiked reports whether email is in the likes set.
func (p *Post) HasLiked(email string) bool { return slices.Contains(p.Likes, email) }

// HasReposted reports whether email is in the reposts set.
func (p *Post) HasReposted(email string) bool { return slices.Contains(p.Reposts, email) }

// HasReported reports whether email is in the reportedBy set.
func (p *Post) HasReported(email string) bool { return slices.Contains(p.ReportedBy, email) }

// ToggleLike flips the membership of email in the likes set and reports
// whether it is present afterwards.
func (p *Post) ToggleLike(email string) bool {
	var on bool
	p.Likes, on = toggleMember(p.Likes, email)
	return on
}

// ToggleRepost flips the membership of email in the reposts set.
func (p *Post) ToggleRepost(email string) bool {
	var on bool
	p.Reposts, on = toggleMember(p.Reposts, email)
	return on
}

// AddReport records a report from email and keeps Reports equal to the size
// of ReportedBy. It returns false when email already reported the post.
func (p *Post) AddReport(email string) bool {
	if p.HasReported(email) {
		return false
	}
	p.ReportedBy = append(p.ReportedBy, email)
	p.Reports = len(p.ReportedBy)
	return true
}

// AppendComment adds c at the end of the comment sequence.
func (p *Post) AppendComment(c Comment) {
	p.Comments = append(p.Comments, c)
}

// LikeCount is the number of distinct users who liked the post.
func (p *Post) LikeCount() int { return len(p.Likes) }

// RepostCount is the number of distinct users who reposted the post.
func (p *Post) RepostCount() int { return len(p.Reposts) }

func toggleMember(set []string, member string) ([]string, bool) {
	if i := slices.Index(set, member); i >= 0 {
		return slices.Delete(set, i, i+1), false
	}
	return append(set, member), true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
