package compiler

import (
	"fmt"

	"github.com/voltlab/netir/internal/ir"
)

// InlinePredicate selects which cells the flattener inlines into their
// parents.
type InlinePredicate func(lib *ir.Library, id ir.CellID) bool

// InlineAll selects every cell.
func InlineAll(*ir.Library, ir.CellID) bool { return true }

// InlineAllowList selects cells by name.
func InlineAllowList(names ...string) InlinePredicate {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(lib *ir.Library, id ir.CellID) bool {
		return set[lib.Def(id).Name()]
	}
}

// InlineBelow selects cells with fewer than maxInstances live instances.
func InlineBelow(maxInstances int) InlinePredicate {
	return func(lib *ir.Library, id ir.CellID) bool {
		c := lib.Cell(id)
		if c == nil {
			return false
		}
		n := 0
		for _, inst := range c.Instances() {
			if inst != nil {
				n++
			}
		}
		return n < maxInstances
	}
}

// Flatten replaces every instance of a selected cell with a copy of the
// child's signals and instances: child-internal signals become fresh
// parent-scoped signals named "<inst>_<signal>", the child's port
// connections are rewritten onto the parent's original connection slices
// (composing bit ranges for sliced connections), and child parameter
// references are substituted from the instantiation site's overrides
// falling back to declared defaults.
//
// Cells are processed children-first, so each selected cell is already
// fully flattened when its parents inline it. Before flattening, cells are
// grouped by structural digest (ir.CellDigest, confirmed by
// ir.StructurallyEqual) so structurally identical subtrees share one
// selection decision and digest computation instead of repeating the work
// per duplicate. Inlined-out cells that are no longer instantiated are
// removed, except the top cell. The flattener never renames for uniqueness;
// the uniquifier runs after it and resolves any collisions the
// instance-qualified names introduce.
//
// The instantiation relation must be acyclic; inlining a cycle member would
// grow its parents without bound, so cyclic input is rejected before any
// cell is touched.
func Flatten(lib *ir.Library, pred InlinePredicate) (*ir.Library, error) {
	if pred == nil {
		return lib, nil
	}
	if diags := cycleDiagnostics(lib); len(diags) > 0 {
		return nil, fmt.Errorf("flatten: %s", diags[0].Message)
	}

	classes, err := dedupClasses(lib)
	if err != nil {
		return nil, err
	}
	selected := make(map[ir.CellID]bool)
	decided := make(map[ir.CellID]bool)
	isSelected := func(id ir.CellID) bool {
		rep := classes[id]
		if !decided[rep] {
			selected[rep] = pred(lib, rep)
			decided[rep] = true
		}
		return selected[rep]
	}

	for _, id := range topoOrder(lib) {
		c := lib.Cell(id)
		if c == nil {
			continue
		}
		// Instances appended by inlining reference already-flattened
		// children, so a single growing scan suffices.
		for i := 0; i < len(c.Instances()); i++ {
			inst := c.Instance(ir.InstanceID(i))
			if inst == nil {
				continue
			}
			child := lib.Cell(inst.Child())
			if child == nil || child.ID() == id || !isSelected(child.ID()) {
				continue
			}
			if err := inlineInstance(lib, c, inst, child); err != nil {
				return nil, err
			}
			if err := lib.RemoveInstance(id, inst.ID()); err != nil {
				return nil, err
			}
		}
	}

	// Drop inlined-out cells that nothing instantiates anymore.
	counts := lib.InstantiationCounts()
	top, hasTop := lib.Top()
	for _, d := range lib.Defs() {
		c, ok := d.(*ir.Cell)
		if !ok {
			continue
		}
		if hasTop && c.ID() == top {
			continue
		}
		if isSelected(c.ID()) && counts[c.ID()] == 0 {
			if err := lib.RemoveDef(c.ID()); err != nil {
				return nil, err
			}
		}
	}

	return lib, nil
}

// dedupClasses maps every definition to the representative of its
// structural equivalence class. Digest collisions are only candidates;
// membership is confirmed by full structural comparison.
func dedupClasses(lib *ir.Library) (map[ir.CellID]ir.CellID, error) {
	classes := make(map[ir.CellID]ir.CellID)
	byDigest := make(map[string][]ir.CellID)
	for _, d := range lib.Defs() {
		if d == nil {
			continue
		}
		digest, err := ir.CellDigest(lib, d.ID())
		if err != nil {
			return nil, fmt.Errorf("flatten: digest of %q: %w", d.Name(), err)
		}
		rep := d.ID()
		for _, candidate := range byDigest[digest] {
			if ir.StructurallyEqual(lib, candidate, d.ID()) {
				rep = candidate
				break
			}
		}
		if rep == d.ID() {
			byDigest[digest] = append(byDigest[digest], rep)
		}
		classes[d.ID()] = rep
	}
	return classes, nil
}

// topoOrder returns cell ids children-first.
func topoOrder(lib *ir.Library) []ir.CellID {
	var order []ir.CellID
	visited := make(map[ir.CellID]bool)
	var visit func(ir.CellID)
	visit = func(id ir.CellID) {
		if visited[id] {
			return
		}
		visited[id] = true
		c := lib.Cell(id)
		if c == nil {
			return
		}
		for _, inst := range c.Instances() {
			if inst == nil {
				continue
			}
			if _, ok := lib.Def(inst.Child()).(*ir.Cell); ok {
				visit(inst.Child())
			}
		}
		order = append(order, id)
	}
	for _, d := range lib.Defs() {
		if c, ok := d.(*ir.Cell); ok {
			visit(c.ID())
		}
	}
	return order
}

// inlineInstance splices one copy of child into parent, replacing inst.
func inlineInstance(lib *ir.Library, parent *ir.Cell, inst *ir.Instance, child *ir.Cell) error {
	conns := inst.Conns()

	// Map every child signal to a parent slice: port signals land on the
	// site's connection slices, internal signals get fresh parent signals.
	sigMap := make(map[ir.SignalID]ir.Slice, len(child.Signals()))
	for k, p := range child.Ports() {
		sigMap[p.Signal] = conns[k]
	}
	for sid, sig := range child.Signals() {
		if sig == nil {
			continue
		}
		if _, ok := sigMap[ir.SignalID(sid)]; ok {
			continue
		}
		fresh, err := lib.AppendSignal(parent.ID(), inst.Name()+"_"+sig.Name, sig.Width)
		if err != nil {
			return err
		}
		sigMap[ir.SignalID(sid)] = ir.WholeSignal(fresh)
	}

	resolved := resolveParams(child.Params(), inst.Params())

	for _, ci := range child.Instances() {
		if ci == nil {
			continue
		}
		newConns := make([]ir.Slice, len(ci.Conns()))
		for i, s := range ci.Conns() {
			mapped, err := composeSlice(parent, child, sigMap, s)
			if err != nil {
				return fmt.Errorf("flatten %q into %q: instance %q: %w",
					child.Name(), parent.Name(), ci.Name(), err)
			}
			newConns[i] = mapped
		}
		params := substituteRefs(ci.Params(), resolved)
		newID, err := lib.AppendInstance(parent.ID(), inst.Name()+"_"+ci.Name(), ci.Child(), newConns, params)
		if err != nil {
			return err
		}
		if text, ok := ci.EmitText(); ok {
			if err := lib.SetInstanceEmitText(parent.ID(), newID, text); err != nil {
				return err
			}
		}
	}
	return nil
}

// composeSlice rewrites a child-scoped slice through sigMap into the parent
// scope, offsetting bit ranges into the mapped parent slice.
func composeSlice(parent, child *ir.Cell, sigMap map[ir.SignalID]ir.Slice, s ir.Slice) (ir.Slice, error) {
	base, ok := sigMap[s.Signal]
	if !ok {
		return ir.Slice{}, fmt.Errorf("unmapped signal %d", s.Signal)
	}
	childStart := 0
	width := child.SliceWidth(s)
	if s.Range != nil {
		childStart = s.Range.Start
	}
	baseStart := 0
	if base.Range != nil {
		baseStart = base.Range.Start
	}
	start := baseStart + childStart
	end := start + width

	parentSig := parent.Signal(base.Signal)
	if parentSig == nil {
		return ir.Slice{}, fmt.Errorf("mapped slice references unknown parent signal %d", base.Signal)
	}
	if start == 0 && end == parentSig.Width {
		return ir.WholeSignal(base.Signal), nil
	}
	return ir.Bits(base.Signal, start, end), nil
}

// resolveParams overlays instantiation-site overrides on declared defaults.
func resolveParams(declared, overrides map[string]ir.ParamValue) map[string]ir.ParamValue {
	out := make(map[string]ir.ParamValue, len(declared))
	for name, def := range declared {
		out[name] = def
	}
	for name, v := range overrides {
		out[name] = v
	}
	return out
}

// substituteRefs replaces ParamRef values with the enclosing cell's resolved
// parameter values. Refs to parameters the cell never declared pass through
// untouched.
func substituteRefs(params, resolved map[string]ir.ParamValue) map[string]ir.ParamValue {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]ir.ParamValue, len(params))
	for name, v := range params {
		if ref, ok := v.(ir.ParamRef); ok {
			if rv, ok := resolved[string(ref)]; ok {
				out[name] = rv
				continue
			}
		}
		out[name] = v
	}
	return out
}
