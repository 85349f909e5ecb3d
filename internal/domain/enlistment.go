package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Enlistment is the ordered set of experiment PRs. The order is the merge order.
type Enlistment struct {
	raw     []string
	numbers []PRNumber
}

// NewEnlistment keeps the raw entries so membership checks can happen before validation.
func NewEnlistment(raw []string) *Enlistment {
	entries := make([]string, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, strings.TrimSpace(r))
	}
	return &Enlistment{raw: entries}
}

// Empty reports whether no PRs are enlisted.
func (e *Enlistment) Empty() bool {
	return len(e.raw) == 0
}

// Contains compares the trigger against the raw enlisted strings.
func (e *Enlistment) Contains(trigger string) bool {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return false
	}
	return slices.Contains(e.raw, trigger)
}

// Raw returns the enlisted entries as given.
func (e *Enlistment) Raw() []string {
	return slices.Clone(e.raw)
}

// Resolve parses every entry and rejects duplicates.
func (e *Enlistment) Resolve() ([]PRNumber, error) {
	if e.numbers != nil {
		return slices.Clone(e.numbers), nil
	}
	numbers := make([]PRNumber, 0, len(e.raw))
	for _, r := range e.raw {
		n, err := ParsePRNumber(r)
		if err != nil {
			return nil, err
		}
		if slices.Contains(numbers, n) {
			return nil, fmt.Errorf("%w: %s is enlisted more than once", ErrInvalidPRNumber, r)
		}
		numbers = append(numbers, n)
	}
	e.numbers = numbers
	return slices.Clone(numbers), nil
}

// String joins the entries for log output.
func (e *Enlistment) String() string {
	return strings.Join(e.raw, ", ")
}
