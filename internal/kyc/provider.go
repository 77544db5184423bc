package kyc

import (
	"context"
	"fmt"
	"sync"
)

// Level is the verification tier granted by the onboarding system.
// This service only consumes the level; document capture and review live
// in the onboarding collaborator.
type Level int

const (
	LevelNone  Level = 0 // unverified
	LevelBasic Level = 1 // PAN verified; higher-value payments allowed
	LevelFull  Level = 2 // full KYC; investments allowed
)

// Provider answers capability-gate questions about a user.
type Provider interface {
	Level(ctx context.Context, userID string) (Level, error)

	// NextSteps lists the ordered onboarding steps still missing to reach
	// the required level. Used only to build actionable error payloads.
	NextSteps(ctx context.Context, userID string, required Level) ([]string, error)
}

// stepsToReach lists the steps that unlock each level, in completion order.
var stepsToReach = map[Level][]string{
	LevelBasic: {"verify_pan"},
	LevelFull:  {"verify_pan", "verify_aadhaar", "add_bank_account"},
}

// RequiredError is returned when an operation is gated on a KYC level the
// user has not reached. It carries enough for an actionable response.
type RequiredError struct {
	Required  Level
	Current   Level
	NextSteps []string
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("kyc level %d required, current level %d", e.Required, e.Current)
}

// Require checks the user's level against required and returns a
// *RequiredError describing the gap when the gate fails.
func Require(ctx context.Context, p Provider, userID string, required Level) error {
	current, err := p.Level(ctx, userID)
	if err != nil {
		return err
	}
	if current >= required {
		return nil
	}
	steps, err := p.NextSteps(ctx, userID, required)
	if err != nil {
		// The gate decision stands even if step lookup fails.
		steps = nil
	}
	return &RequiredError{Required: required, Current: current, NextSteps: steps}
}

// StaticProvider is a map-backed Provider for tests and local development.
// Unknown users are LevelNone.
type StaticProvider struct {
	mu     sync.RWMutex
	levels map[string]Level
}

func NewStaticProvider(levels map[string]Level) *StaticProvider {
	cp := make(map[string]Level, len(levels))
	for k, v := range levels {
		cp[k] = v
	}
	return &StaticProvider{levels: cp}
}

func (p *StaticProvider) Level(_ context.Context, userID string) (Level, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.levels[userID], nil
}

func (p *StaticProvider) NextSteps(ctx context.Context, userID string, required Level) ([]string, error) {
	current, err := p.Level(ctx, userID)
	if err != nil {
		return nil, err
	}
	return MissingSteps(current, required), nil
}

// SetLevel is a test helper.
func (p *StaticProvider) SetLevel(userID string, l Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels[userID] = l
}

// MissingSteps returns the ordered steps between current and required.
func MissingSteps(current, required Level) []string {
	all := stepsToReach[required]
	done := stepsToReach[current]
	if len(all) == 0 {
		return nil
	}
	doneSet := make(map[string]struct{}, len(done))
	for _, s := range done {
		doneSet[s] = struct{}{}
	}
	var out []string
	for _, s := range all {
		if _, ok := doneSet[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
