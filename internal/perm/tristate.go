// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package perm defines the shared value types of the permission engine:
// tristate check results, mutation outcomes, and lookup settings.
package perm

// Tristate is the result of a permission check. Undefined means no node
// matched; callers decide whether that counts as a denial.
type Tristate int

// Tristate values.
const (
	Undefined Tristate = iota
	True
	False
)

var tristateStrings = [...]string{"undefined", "true", "false"}

func (t Tristate) String() string {
	if t >= 0 && int(t) < len(tristateStrings) {
		return tristateStrings[t]
	}
	return "undefined"
}

// AsBoolean collapses the tristate to a boolean, treating Undefined as false.
func (t Tristate) AsBoolean() bool {
	return t == True
}

// TristateOf converts a boolean node value to its tristate form.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}
