// Package moderation holds the automatic moderation rule for reported posts.
package moderation

// Threshold is the number of distinct reports at which a post is removed.
const Threshold = 5

// Decision is the outcome of evaluating a post's report count.
type Decision int

const (
	// Keep leaves the post in place.
	Keep Decision = iota
	// Delete removes the post permanently.
	Delete
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Decide returns Delete once reports reaches Threshold and Keep otherwise.
func Decide(reports int) Decision {
	if reports >= Threshold {
		return Delete
	}
	return Keep
}
