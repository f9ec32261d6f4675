// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package selector turns the instance selector flags and the legacy
// CUTTLEFISH_INSTANCE variable into a validated, ordered set of instance
// numbers.
//
// Resolve is pure: it does no I/O and keeps no state, so it is safe to call
// from any number of goroutines.
package selector

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultBase is the first instance number when nothing else names one.
const DefaultBase = 1

// Input is a snapshot of the selector sources for one invocation.
type Input struct {
	NumInstances    Optional[int]
	BaseInstanceNum Optional[int]
	InstanceNums    Optional[[]int]
	EnvInstance     Optional[int]
}

// Requested reports whether any selector source was supplied.
func (in Input) Requested() bool {
	return in.NumInstances.Present() ||
		in.BaseInstanceNum.Present() ||
		in.InstanceNums.Present() ||
		in.EnvInstance.Present()
}

// Mode is the addressing mode that produced a Set.
type Mode int

const (
	ModeRange Mode = iota
	ModeExplicit
)

func (m Mode) String() string {
	if m == ModeExplicit {
		return "explicit"
	}
	return "range"
}

// Set is the resolved, ordered set of instance numbers. Range sets are kept
// as base and count and only expanded on demand.
type Set struct {
	ids       []int
	base      int
	count     int
	mode      Mode
	requested bool
}

// IDs returns a copy of the instance numbers in resolution order.
func (s Set) IDs() []int {
	if s.mode == ModeRange {
		return expandRange(s.base, s.count)
	}
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s Set) Len() int {
	if s.mode == ModeRange {
		return s.count
	}
	return len(s.ids)
}

func (s Set) Mode() Mode { return s.mode }

// Requested is false when the set came from the built-in default only.
func (s Set) Requested() bool { return s.requested }

func (s Set) Contains(n int) bool {
	if s.mode == ModeRange {
		return n >= s.base && n-s.base < s.count
	}
	for _, id := range s.ids {
		if id == n {
			return true
		}
	}
	return false
}

// Range returns base and count for range-derived sets.
func (s Set) Range() (base, count int, ok bool) {
	if s.mode != ModeRange || s.count == 0 {
		return 0, 0, false
	}
	return s.base, s.count, true
}

// String renders the set as a comma-separated list, e.g. "2,5,6".
func (s Set) String() string {
	var b strings.Builder
	for i, id := range s.IDs() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// modeRule is one row of the addressing mode table. Rows are tried in order
// and the first whose match returns true resolves the input.
type modeRule struct {
	mode    Mode
	match   func(Input) bool
	resolve func(Input) (Set, error)
}

var modeTable = []modeRule{
	{mode: ModeExplicit, match: func(in Input) bool { return in.InstanceNums.Present() }, resolve: resolveExplicit},
	{mode: ModeRange, match: func(Input) bool { return true }, resolve: resolveRange},
}

// baseSources lists where the range base comes from, highest precedence first.
var baseSources = []func(Input) Optional[int]{
	func(in Input) Optional[int] { return in.BaseInstanceNum },
	func(in Input) Optional[int] { return in.EnvInstance },
	func(Input) Optional[int] { return Some(DefaultBase) },
}

// Resolve validates in and returns the instance set it selects.
func Resolve(in Input) (Set, error) {
	for _, rule := range modeTable {
		if !rule.match(in) {
			continue
		}
		set, err := rule.resolve(in)
		if err != nil {
			return Set{}, err
		}
		set.mode = rule.mode
		set.requested = in.Requested()
		return set, nil
	}
	// modeTable ends with a catch-all row.
	return Set{}, newError(KindUnknown, "no addressing mode matched")
}

func resolveExplicit(in Input) (Set, error) {
	list, _ := in.InstanceNums.Get()
	if in.BaseInstanceNum.Present() {
		return Set{}, newError(KindConflictingSource,
			"--%s cannot be combined with --%s", FlagBaseInstanceNum, FlagInstanceNums)
	}
	if n, ok := in.NumInstances.Get(); ok && n != len(list) {
		return Set{}, newError(KindCountMismatch,
			"--%s=%d does not match the %d ids in --%s", FlagNumInstances, n, len(list), FlagInstanceNums)
	}
	if len(list) == 0 {
		return Set{}, newError(KindInvalidRange, "--%s must name at least one instance", FlagInstanceNums)
	}

	ids := make([]int, 0, len(list))
	seen := make(map[int]struct{}, len(list))
	for _, id := range list {
		if id < 1 {
			return Set{}, newError(KindInvalidRange, "instance id %d in --%s is not positive", id, FlagInstanceNums)
		}
		if _, dup := seen[id]; dup {
			return Set{}, newError(KindDuplicateInstanceID, "instance id %d appears more than once in --%s", id, FlagInstanceNums)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Set{ids: ids}, nil
}

func resolveRange(in Input) (Set, error) {
	var base int
	for _, source := range baseSources {
		if v, ok := source(in).Get(); ok {
			base = v
			break
		}
	}
	count := 1
	if n, ok := in.NumInstances.Get(); ok {
		count = n
	}

	if count < 1 {
		return Set{}, newError(KindInvalidRange, "instance count %d must be at least 1", count)
	}
	if base < 1 {
		return Set{}, newError(KindInvalidRange, "base instance number %d must be at least 1", base)
	}
	if base > math.MaxInt-(count-1) {
		return Set{}, newError(KindInvalidRange, "range of %d instances starting at %d overflows", count, base)
	}

	return Set{base: base, count: count}, nil
}

func expandRange(base, count int) []int {
	ids := make([]int, count)
	for i := range ids {
		ids[i] = base + i
	}
	return ids
}
