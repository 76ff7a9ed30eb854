package coach

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/entitlement"
)

// Generator is the boundary to the external AI-generation collaborator. It
// is called only after an allowed entitlement decision, and its provider
// metadata flows into usage accounting. Implementations own prompt templates
// and multi-provider fallback; the core treats them as opaque.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// GenerationRequest is the validated payload handed to the collaborator.
type GenerationRequest struct {
	UserID  uuid.UUID
	Action  entitlement.Action
	Payload json.RawMessage
}

// GenerationResult is the collaborator's output.
type GenerationResult struct {
	Content    json.RawMessage
	Provider   string // which upstream LLM provider served the request
	TokensUsed int64  // cost hint for analytics, zero when unknown
}
