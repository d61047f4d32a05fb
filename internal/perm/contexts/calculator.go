// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package contexts

import "context"

// Calculator supplies dynamic context pairs for a subject at query time.
// Implementations must be safe for concurrent use.
type Calculator interface {
	// Calculate appends the subject's current contexts to acc.
	Calculate(ctx context.Context, subject string, acc *MutableContextSet) error
}

// StaticCalculator contributes a fixed set of pairs to every subject.
// Useful for deployment-wide contexts like the server name.
type StaticCalculator struct {
	set ImmutableContextSet
}

// NewStaticCalculator creates a calculator that always yields set.
func NewStaticCalculator(set ImmutableContextSet) *StaticCalculator {
	return &StaticCalculator{set: set}
}

// Calculate implements Calculator.
func (c *StaticCalculator) Calculate(_ context.Context, _ string, acc *MutableContextSet) error {
	acc.AddAll(c.set)
	return nil
}

// CalculateAll folds every calculator's output into one frozen set. A
// calculator error aborts the fold.
func CalculateAll(ctx context.Context, subject string, calcs []Calculator) (ImmutableContextSet, error) {
	acc := NewMutable()
	for _, c := range calcs {
		if err := c.Calculate(ctx, subject, acc); err != nil {
			return ImmutableContextSet{}, err
		}
	}
	return acc.Freeze(), nil
}
