package coach

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/credits"
	"github.com/wodworks/coachkit/pkg/entitlement"
	"github.com/wodworks/coachkit/pkg/usage"
)

// Deducter is the slice of the credit engine the orchestrator spends through.
type Deducter interface {
	Deduct(ctx context.Context, userID uuid.UUID, featureKey string, metadata map[string]any) (credits.DeductResult, error)
}

// Service brokers one metered request end to end: entitlement check, bounded
// call to the generation collaborator, credit deduction when the action is
// credit-funded, and usage accounting on every path. Credits are deducted
// only after successful generation, so a provider failure or timeout never
// leaves a partial charge behind.
type Service struct {
	resolver   *entitlement.Resolver
	deducter   Deducter
	generator  Generator
	recorder   *usage.Recorder
	log        *slog.Logger
	genTimeout time.Duration
}

// Config tunes optional service behavior.
type Config struct {
	// GenerationTimeout bounds each collaborator call. Defaults to 60s.
	GenerationTimeout time.Duration `env:"COACH_GENERATION_TIMEOUT" envDefault:"60s"`
}

// NewService wires the orchestrator. All collaborators are required.
func NewService(resolver *entitlement.Resolver, deducter Deducter, generator Generator, recorder *usage.Recorder, log *slog.Logger, cfg Config) *Service {
	if resolver == nil || deducter == nil || generator == nil || recorder == nil {
		panic("coach: all collaborators are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 60 * time.Second
	}

	return &Service{
		resolver:   resolver,
		deducter:   deducter,
		generator:  generator,
		recorder:   recorder,
		log:        log,
		genTimeout: cfg.GenerationTimeout,
	}
}

// RequestInfo identifies the inbound request for usage accounting.
type RequestInfo struct {
	Endpoint string
	Method   string
}

// Outcome is the result of a successfully brokered request.
type Outcome struct {
	Content       *GenerationResult
	Decision      *entitlement.Decision
	CreditsSpent  int64
	NewBalance    int64     // meaningful only when CreditsSpent > 0
	TransactionID uuid.UUID // deduction ledger entry, zero when quota-funded
}

// Perform runs the full control flow for one metered action.
//
// Entitlement denials surface as *DeniedError (expected outcomes), provider
// failures as ErrGenerationFailed, and a lost deduction race as the engine's
// *InsufficientCreditsError - the atomic check in the engine is authoritative
// over the resolver's earlier read.
func (s *Service) Perform(ctx context.Context, userID uuid.UUID, action entitlement.Action, req GenerationRequest, info RequestInfo) (*Outcome, error) {
	started := time.Now()

	decision, err := s.resolver.Check(ctx, userID, action)
	if err != nil {
		s.record(ctx, userID, action, info, started, http.StatusInternalServerError, "", "", err)
		return nil, err
	}
	if !decision.Allowed {
		s.record(ctx, userID, action, info, started, http.StatusPaymentRequired, "", "", nil)
		return nil, &DeniedError{Decision: decision}
	}

	req.UserID = userID
	req.Action = action

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	result, err := s.generator.Generate(genCtx, req)
	cancel()
	if err != nil {
		// Nothing was charged: deduction happens only after success.
		s.record(ctx, userID, action, info, started, http.StatusBadGateway, "", "", err)
		return nil, errors.Join(ErrGenerationFailed, err)
	}

	outcome := &Outcome{Content: result, Decision: decision}

	if decision.FundedBy == entitlement.FundedByCredits {
		deduction, err := s.deducter.Deduct(ctx, userID, action.CreditKey(), map[string]any{
			"action":   string(action),
			"provider": result.Provider,
		})
		if err != nil {
			// Generation already happened but the balance check is the
			// authority; the content is discarded and the user not charged.
			s.record(ctx, userID, action, info, started, http.StatusPaymentRequired, result.Provider, "", err)
			return nil, err
		}
		outcome.CreditsSpent = deduction.Cost
		outcome.NewBalance = deduction.NewBalance
		outcome.TransactionID = deduction.TransactionID
	}

	s.record(ctx, userID, action, info, started, http.StatusOK, result.Provider, string(decision.FundedBy), nil)
	return outcome, nil
}

// Preview exposes the advisory entitlement check without performing work,
// for UI gating.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID, action entitlement.Action) (*entitlement.Decision, error) {
	return s.resolver.Check(ctx, userID, action)
}

// record hands the outcome to the usage recorder. Successful requests count
// against their quota category; everything else is recorded under the action
// name so failed attempts never consume quota.
func (s *Service) record(ctx context.Context, userID uuid.UUID, action entitlement.Action, info RequestInfo, started time.Time, status int, provider, fundedBy string, cause error) {
	feature := string(action)
	if status == http.StatusOK && action.Category() != "" {
		feature = string(action.Category())
	}

	rec := usage.Record{
		UserID:     userID,
		Feature:    feature,
		Endpoint:   info.Endpoint,
		Method:     info.Method,
		StatusCode: status,
		Latency:    time.Since(started),
		Provider:   provider,
		FundedBy:   fundedBy,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	s.recorder.Record(ctx, rec)
}
