package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	PostKeyPrefix    = "post:%s"
	PostGenKeyPrefix = "post:%s:gen"
	SearchKeyPrefix = "search:%s"
	UserKeyPrefix   = "user:%s"
)

const (
	PostTTL   = 30 * time.Second
	SearchTTL = 15 * time.Second
	UserTTL   = 5 * time.Minute

	// generationTTL must outlive every guarded entry so a stamp is never reused
	// while an entry carrying it is still stored.
	generationTTL = 10 * time.Minute
)

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func PostGenKey(postID string) string {
	return fmt.Sprintf(PostGenKeyPrefix, postID)
}

// SearchKey hashes the normalized query so arbitrary user input never ends up in a key.
func SearchKey(query string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf(SearchKeyPrefix, hex.EncodeToString(sum[:]))
}

func UserKey(email string) string {
	return fmt.Sprintf(UserKeyPrefix, strings.ToLower(email))
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidatePost bumps the post's write generation and drops its cached copy.
// Call it after the write is committed.
func InvalidatePost(ctx context.Context, postID string) {
	Bump(ctx, PostGenKey(postID), PostKey(postID))
}
