package policy

import (
	"context"
	"errors"
)

// ErrNotImplemented reports that attribute-based rule evaluation is not
// available. Resolution treats it as "the rule contributes no permissions"
// rather than failing; any other evaluator error fails the resolution.
var ErrNotImplemented = errors.New("abac rule evaluation is not implemented")

// ABACEvaluator evaluates attribute-based access rules for a user against
// one application, returning additional permission keys to grant.
type ABACEvaluator interface {
	Evaluate(ctx context.Context, user User, appID string) ([]string, error)
}

// UnimplementedABAC is the placeholder evaluator. Every call returns
// ErrNotImplemented so callers must consciously decide to ignore it.
type UnimplementedABAC struct{}

// Evaluate always returns ErrNotImplemented.
func (UnimplementedABAC) Evaluate(ctx context.Context, user User, appID string) ([]string, error) {
	return nil, ErrNotImplemented
}
