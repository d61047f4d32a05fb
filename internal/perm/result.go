// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package perm

// DataMutateResult is the outcome of a mutating operation on a holder or
// track. Callers use it to decide whether to persist, log, and fire events:
// only outcomes with AsBoolean() == true represent an applied change.
type DataMutateResult int

// DataMutateResult values.
const (
	// Success means the mutation was applied.
	Success DataMutateResult = iota
	// SuccessSetValue means an existing node's value was flipped in place.
	SuccessSetValue
	// AlreadyHas means the holder already had an equal permanent node.
	AlreadyHas
	// AlreadyHasTemp means the holder already had an equal temporary node.
	AlreadyHasTemp
	// Lacks means the holder did not have the permanent node to remove.
	Lacks
	// LacksTemp means the holder did not have the temporary node to remove.
	LacksTemp
	// Fail means the mutation could not be evaluated at all.
	Fail
)

var resultStrings = [...]string{
	"success",
	"success_set_value",
	"already_has",
	"already_has_temp",
	"lacks",
	"lacks_temp",
	"fail",
}

func (r DataMutateResult) String() string {
	if r >= 0 && int(r) < len(resultStrings) {
		return resultStrings[r]
	}
	return "fail"
}

// AsBoolean reports whether the mutation applied a change that should be
// persisted.
func (r DataMutateResult) AsBoolean() bool {
	return r == Success || r == SuccessSetValue
}
