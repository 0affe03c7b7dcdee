package compiler

import (
	"fmt"

	"github.com/voltlab/netir/internal/ir"
)

// Validate checks every structural invariant over a built library and
// returns all violations found. It is read-only and idempotent: re-running
// it after any pass yields identical diagnostics for an unchanged library.
func Validate(lib *ir.Library) Issues {
	var diags []Diagnostic

	for _, d := range lib.Defs() {
		switch v := d.(type) {
		case *ir.Cell:
			diags = append(diags, validateCell(lib, v)...)
		case *ir.Primitive, *ir.BlackBox:
			// Leaves carry their invariants from construction.
		}
	}

	diags = append(diags, cycleDiagnostics(lib)...)

	if _, ok := lib.Top(); !ok {
		diags = append(diags, Diagnostic{
			Code:     CodeNoTopCell,
			Severity: SeverityWarning,
			Cell:     -1,
			Message:  "library has no top cell set",
		})
	}

	return Issues{Diagnostics: diags}
}

func validateCell(lib *ir.Library, c *ir.Cell) []Diagnostic {
	var diags []Diagnostic

	connected := make(map[ir.SignalID]bool)
	for _, p := range c.Ports() {
		connected[p.Signal] = true
	}

	for sid, sig := range c.Signals() {
		if sig == nil {
			continue
		}
		if sig.Width < 1 {
			diags = append(diags, Diagnostic{
				Code:     CodeZeroWidth,
				Severity: SeverityError,
				Cell:     c.ID(),
				Signal:   ir.SignalID(sid),
				Message:  fmt.Sprintf("signal %q has width %d", sig.Name, sig.Width),
			})
		}
	}

	for _, inst := range c.Instances() {
		if inst == nil {
			continue
		}
		child := lib.ChildOf(inst)
		if child == nil {
			diags = append(diags, Diagnostic{
				Code:     CodeDanglingRef,
				Severity: SeverityError,
				Cell:     c.ID(),
				Instance: inst.ID(),
				Message:  fmt.Sprintf("instance %q references unknown definition %d", inst.Name(), inst.Child()),
			})
			continue
		}

		specs := child.PortSpecs()
		conns := inst.Conns()
		if len(conns) != len(specs) {
			diags = append(diags, Diagnostic{
				Code:     CodeUnconnectedPort,
				Severity: SeverityError,
				Cell:     c.ID(),
				Instance: inst.ID(),
				Message: fmt.Sprintf("instance %q of %q connects %d of %d ports",
					inst.Name(), child.Name(), len(conns), len(specs)),
			})
			continue
		}

		for i, s := range conns {
			connected[s.Signal] = true
			sig := c.Signal(s.Signal)
			if sig == nil {
				diags = append(diags, Diagnostic{
					Code:     CodeDanglingRef,
					Severity: SeverityError,
					Cell:     c.ID(),
					Instance: inst.ID(),
					Signal:   s.Signal,
					Message:  fmt.Sprintf("instance %q port %d connects to unknown signal %d", inst.Name(), i, s.Signal),
				})
				continue
			}
			if s.Range != nil && (s.Range.Start < 0 || s.Range.End > sig.Width || s.Range.Start >= s.Range.End) {
				diags = append(diags, Diagnostic{
					Code:     CodeInvalidRange,
					Severity: SeverityError,
					Cell:     c.ID(),
					Instance: inst.ID(),
					Signal:   s.Signal,
					Message: fmt.Sprintf("instance %q port %d: bit range [%d:%d) out of bounds for %q (width %d)",
						inst.Name(), i, s.Range.Start, s.Range.End, sig.Name, sig.Width),
				})
				continue
			}
			if got := c.SliceWidth(s); got != specs[i].Width {
				diags = append(diags, Diagnostic{
					Code:     CodeWidthMismatch,
					Severity: SeverityError,
					Cell:     c.ID(),
					Instance: inst.ID(),
					Signal:   s.Signal,
					Message: fmt.Sprintf("instance %q port %q expects width %d, connected slice has width %d",
						inst.Name(), specs[i].Name, specs[i].Width, got),
				})
			}
		}

		declared := child.Params()
		for name := range inst.Params() {
			if _, ok := declared[name]; !ok {
				diags = append(diags, Diagnostic{
					Code:     CodeUnknownParam,
					Severity: SeverityError,
					Cell:     c.ID(),
					Instance: inst.ID(),
					Message:  fmt.Sprintf("instance %q overrides undeclared parameter %q of %q", inst.Name(), name, child.Name()),
				})
			}
		}
	}

	for sid, sig := range c.Signals() {
		if sig == nil || connected[ir.SignalID(sid)] {
			continue
		}
		diags = append(diags, Diagnostic{
			Code:     CodeUnusedSignal,
			Severity: SeverityWarning,
			Cell:     c.ID(),
			Signal:   ir.SignalID(sid),
			Message:  fmt.Sprintf("signal %q is neither a port nor connected to any instance", sig.Name),
		})
	}

	return diags
}
