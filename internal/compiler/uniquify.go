package compiler

import (
	"fmt"

	"github.com/voltlab/netir/internal/ir"
)

// maxSuffixAttempts bounds the collision-suffix search. Hitting it means a
// pathological input; the deterministic algorithm cannot loop otherwise.
const maxSuffixAttempts = 1 << 20

// UniquifyError reports exhausted suffix space: no legal unique name exists
// for the given base under the active dialect's length limit.
type UniquifyError struct {
	Base    string
	Message string
}

// Error implements the error interface.
func (e *UniquifyError) Error() string {
	return fmt.Sprintf("uniquify %q: %s", e.Base, e.Message)
}

// Uniquify assigns a collision-free name to every definition and every
// signal that will appear in exported text. rules may be nil for no dialect
// legalization.
//
// The scheme is deterministic and order-stable: names are walked in
// ascending id order, the first occupant of a name keeps it, and a later
// collision receives the smallest "_<n>" suffix (n >= 1) that is itself
// unused. Dialect legalization first maps illegal characters to '_', then
// truncates to the dialect limit reserving room for the suffix, then applies
// the same suffix rule - so two distinct names that collide only after
// truncation are still told apart, never silently merged. Running the pass
// twice on its own output is a no-op.
func Uniquify(lib *ir.Library, rules *ir.IdentRules) (*ir.Library, error) {
	var r ir.IdentRules
	if rules != nil {
		r = *rules
	}

	// Definition names share one scope: the library.
	seen := make(map[string]bool)
	for _, d := range lib.Defs() {
		if d == nil {
			continue
		}
		name, err := pickUnique(seen, r.LegalizeChars(d.Name()), r)
		if err != nil {
			return nil, err
		}
		if name != d.Name() {
			if err := lib.SetDefName(d.ID(), name); err != nil {
				return nil, err
			}
		}
		seen[name] = true
	}

	// Signal names are scoped to their cell.
	for _, d := range lib.Defs() {
		c, ok := d.(*ir.Cell)
		if !ok {
			continue
		}
		sigSeen := make(map[string]bool)
		for sid, sig := range c.Signals() {
			if sig == nil {
				continue
			}
			name, err := pickUnique(sigSeen, r.LegalizeChars(sig.Name), r)
			if err != nil {
				return nil, err
			}
			if name != sig.Name {
				if err := lib.SetSignalName(c.ID(), ir.SignalID(sid), name); err != nil {
					return nil, err
				}
			}
			sigSeen[name] = true
		}
	}

	return lib, nil
}

// pickUnique returns base (truncated to the length limit) if unoccupied, or
// the first suffixed candidate that is. It never registers the chosen name;
// the caller owns the seen set.
func pickUnique(seen map[string]bool, base string, rules ir.IdentRules) (string, error) {
	candidate := truncate(base, rules.MaxLen)
	if !seen[candidate] {
		return candidate, nil
	}
	for n := 1; n <= maxSuffixAttempts; n++ {
		suffix := fmt.Sprintf("_%d", n)
		stem := base
		if rules.MaxLen > 0 {
			room := rules.MaxLen - len(suffix)
			if room < 1 {
				return "", &UniquifyError{Base: base, Message: fmt.Sprintf("length limit %d leaves no room for a collision suffix", rules.MaxLen)}
			}
			stem = truncate(base, room)
		}
		if cand := stem + suffix; !seen[cand] {
			return cand, nil
		}
	}
	return "", &UniquifyError{Base: base, Message: "suffix space exhausted"}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
