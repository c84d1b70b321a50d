package brain

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/docuchat/console/internal/store"
)

// AgentType is the behavior-row discriminator in the config store.
const AgentType = "brain"

// BrainConfig holds the per-app/org behavior parameters of the engine,
// built once per request by merging a possibly-partial store row over
// compiled-in defaults field-by-field.
type BrainConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int

	ContextMessageCount int
	IdleTimeoutMinutes  int

	EnableQueryRewriting         bool
	EnableIntentDetection        bool
	EnableDocumentDetection      bool
	EnableSearchConfigGeneration bool
	SkipSearchForConversational  bool
	StreamImmediateAck           bool
	StreamAnalysisStep           bool
	FallbackToKeywords           bool
}

// DefaultBrainConfig returns the compiled-in defaults. Every field of a
// resolved config is guaranteed non-absent because unmatched store fields
// fall back to these values independently.
func DefaultBrainConfig() BrainConfig {
	return BrainConfig{
		Model:                        "gpt-4o-mini",
		Temperature:                  0.2,
		MaxTokens:                    1024,
		ContextMessageCount:          10,
		IdleTimeoutMinutes:           30,
		EnableQueryRewriting:         true,
		EnableIntentDetection:        true,
		EnableDocumentDetection:      true,
		EnableSearchConfigGeneration: true,
		SkipSearchForConversational:  true,
		StreamImmediateAck:           true,
		StreamAnalysisStep:           true,
		FallbackToKeywords:           true,
	}
}

// ConfigStore is the active-behavior-row lookup of the external store.
type ConfigStore interface {
	ActiveAgentConfig(ctx context.Context, agentType, appID, orgID string) (*store.AgentConfigRow, error)
}

// ResolveConfig loads the behavior row scoped to the org first, falling back
// to the app-wide row, and merges it over defaults. A missing or unreachable
// configuration row is never fatal: the pure defaults are returned.
func ResolveConfig(ctx context.Context, cs ConfigStore, appID, orgID string) BrainConfig {
	cfg := DefaultBrainConfig()

	row, err := cs.ActiveAgentConfig(ctx, AgentType, appID, orgID)
	if err != nil {
		log.Warn().Err(err).
			Str("app_id", appID).
			Str("org_id", orgID).
			Msg("Agent config lookup failed, using defaults")
		return cfg
	}
	if row == nil {
		return cfg
	}

	return MergeConfig(cfg, row)
}

// MergeConfig overlays the non-nil fields of a store row onto base. Each
// field falls back to its own default independently; a partial row never
// zeroes an unspecified field.
func MergeConfig(base BrainConfig, row *store.AgentConfigRow) BrainConfig {
	if row.Model != nil && *row.Model != "" {
		base.Model = *row.Model
	}
	if row.Temperature != nil {
		base.Temperature = *row.Temperature
	}
	if row.MaxTokens != nil && *row.MaxTokens > 0 {
		base.MaxTokens = *row.MaxTokens
	}
	if row.ContextMessageCount != nil && *row.ContextMessageCount > 0 {
		base.ContextMessageCount = *row.ContextMessageCount
	}
	if row.IdleTimeoutMinutes != nil && *row.IdleTimeoutMinutes > 0 {
		base.IdleTimeoutMinutes = *row.IdleTimeoutMinutes
	}
	if row.EnableQueryRewriting != nil {
		base.EnableQueryRewriting = *row.EnableQueryRewriting
	}
	if row.EnableIntentDetection != nil {
		base.EnableIntentDetection = *row.EnableIntentDetection
	}
	if row.EnableDocumentDetection != nil {
		base.EnableDocumentDetection = *row.EnableDocumentDetection
	}
	if row.EnableSearchConfigGeneration != nil {
		base.EnableSearchConfigGeneration = *row.EnableSearchConfigGeneration
	}
	if row.SkipSearchForConversational != nil {
		base.SkipSearchForConversational = *row.SkipSearchForConversational
	}
	if row.StreamImmediateAck != nil {
		base.StreamImmediateAck = *row.StreamImmediateAck
	}
	if row.StreamAnalysisStep != nil {
		base.StreamAnalysisStep = *row.StreamAnalysisStep
	}
	if row.FallbackToKeywords != nil {
		base.FallbackToKeywords = *row.FallbackToKeywords
	}
	return base
}
