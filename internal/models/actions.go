package models

import "time"

// ActionKind is the type of engagement action being requested.
type ActionKind string

const (
	KindLike    ActionKind = "like"
	KindComment ActionKind = "comment"
	KindShare   ActionKind = "share"
	KindConnect ActionKind = "connect"
)

// ParseActionKind returns the kind and whether it is known.
func ParseActionKind(s string) (ActionKind, bool) {
	switch k := ActionKind(normalizeName(s)); k {
	case KindLike, KindComment, KindShare, KindConnect:
		return k, true
	default:
		return k, false
	}
}

// Connection degrees.
const (
	DegreeFirst  = 1
	DegreeSecond = 2
	DegreeThird  = 3 // 3rd and beyond
)

// NormalizeDegree maps unknown or out-of-range degrees to 3rd+.
func NormalizeDegree(d int) int {
	if d < DegreeFirst || d > DegreeThird {
		return DegreeThird
	}
	return d
}

// Post is the descriptor supplied by the page extraction collaborator.
type Post struct {
	ID               string        `json:"id"`
	Author           string        `json:"author"`
	Text             string        `json:"text"`
	WordCount        int           `json:"word_count"`
	HasImage         bool          `json:"has_image"`
	HasVideo         bool          `json:"has_video"`
	LikeCount        int           `json:"like_count"`
	CommentCount     int           `json:"comment_count"`
	Age              time.Duration `json:"age"`
	ConnectionDegree int           `json:"connection_degree"`
}

// ActionOutcome is reported back after the executor performs an action.
type ActionOutcome struct {
	Kind     ActionKind    `json:"kind"`
	PostID   string        `json:"post_id,omitempty"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	At       time.Time     `json:"at"`
}

// PageSnapshot is what the page-side executor sees at scan time.
type PageSnapshot struct {
	URL                 string    `json:"url"`
	Text                string    `json:"text"`
	Markup              string    `json:"markup,omitempty"`
	InteractiveTotal    int       `json:"interactive_total"`
	InteractiveDisabled int       `json:"interactive_disabled"`
	CapturedAt          time.Time `json:"captured_at"`
}
