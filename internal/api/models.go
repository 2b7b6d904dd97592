package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/p-blackswan/engagement-guard/internal/guard"
	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/timing"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

var validate = validator.New()

// CheckActionRequest is the body of POST /api/v1/actions/check.
type CheckActionRequest struct {
	Kind             string `json:"kind" validate:"required,oneof=like comment share connect"`
	PostID           string `json:"post_id" validate:"max=256"`
	ConnectionDegree int    `json:"connection_degree" validate:"gte=0,lte=10"`
}

func (r CheckActionRequest) toGuard() guard.ActionRequest {
	return guard.ActionRequest{
		Kind:             models.ActionKind(r.Kind),
		PostID:           r.PostID,
		ConnectionDegree: r.ConnectionDegree,
	}
}

// CheckActionResponse wraps the decision with a machine-readable denial code.
type CheckActionResponse struct {
	guard.Decision
	Code         string `json:"code,omitempty"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// OutcomeRequest is the body of POST /api/v1/actions/outcome.
type OutcomeRequest struct {
	Kind       string    `json:"kind" validate:"required,oneof=like comment share connect"`
	PostID     string    `json:"post_id" validate:"max=256"`
	DurationMS int64     `json:"duration_ms" validate:"gte=0,lte=3600000"`
	Success    bool      `json:"success"`
	At         time.Time `json:"at"`
}

func (r OutcomeRequest) toModel() models.ActionOutcome {
	return models.ActionOutcome{
		Kind:     models.ActionKind(r.Kind),
		PostID:   r.PostID,
		Duration: time.Duration(r.DurationMS) * time.Millisecond,
		Success:  r.Success,
		At:       r.At,
	}
}

// ScanRequest is the body of POST /api/v1/scan. An empty body re-scans the
// last snapshot.
type ScanRequest struct {
	Page *models.PageSnapshot `json:"page"`
}

// ReadingRequest is the body of POST /api/v1/timing/reading.
type ReadingRequest struct {
	Post models.Post `json:"post"`
}

// TypingRequest is the body of POST /api/v1/timing/typing.
type TypingRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

// CursorRequest is the body of POST /api/v1/timing/cursor.
type CursorRequest struct {
	Start timing.Point `json:"start"`
	End   timing.Point `json:"end"`
	Steps int          `json:"steps" validate:"gte=0,lte=500"`
}

// CursorResponse is a pointer path and its travel time.
type CursorResponse struct {
	Path       []timing.Point `json:"path"`
	DurationMS int64          `json:"duration_ms"`
}

// CooldownRequest is the body of POST /api/v1/cooldown.
type CooldownRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

// DurationResponse reports a single computed wait.
type DurationResponse struct {
	MS       int64  `json:"ms"`
	Duration string `json:"duration"`
}

func durationResponse(d time.Duration) DurationResponse {
	return DurationResponse{MS: d.Milliseconds(), Duration: d.String()}
}

// BreakResponse is the answer to GET /api/v1/timing/break.
type BreakResponse struct {
	Break      *timing.Break `json:"break"`
	DurationMS int64         `json:"duration_ms,omitempty"`
}
