package ir

import "fmt"

// Library owns a set of definitions and a distinguished top cell. It is
// built once through a Builder, then threaded through the compiler passes;
// it is never mutated concurrently with being read by a netlister.
type Library struct {
	name string
	defs []Def // indexed by CellID
	top  CellID
}

// Name returns the library name.
func (l *Library) Name() string { return l.name }

// Len returns the number of definitions in the library.
func (l *Library) Len() int { return len(l.defs) }

// Defs returns all definitions in ascending id order. The returned slice is
// the library's own storage; callers must not modify it.
func (l *Library) Defs() []Def { return l.defs }

// Def returns the definition with the given id, or nil if out of range.
// Deleted definitions read as nil; their ids are never reassigned.
func (l *Library) Def(id CellID) Def {
	if id < 0 || int(id) >= len(l.defs) {
		return nil
	}
	return l.defs[id]
}

// Cell returns the cell with the given id, or nil if the id does not name a
// cell.
func (l *Library) Cell(id CellID) *Cell {
	c, _ := l.Def(id).(*Cell)
	return c
}

// DefNamed returns the definition with the given name.
func (l *Library) DefNamed(name string) (Def, bool) {
	for _, d := range l.defs {
		if d != nil && d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// CellNamed returns the cell with the given name.
func (l *Library) CellNamed(name string) (*Cell, bool) {
	d, ok := l.DefNamed(name)
	if !ok {
		return nil, false
	}
	c, ok := d.(*Cell)
	return c, ok
}

// Top returns the id of the distinguished top cell, or false if none is set.
func (l *Library) Top() (CellID, bool) {
	if l.top < 0 {
		return -1, false
	}
	return l.top, true
}

// SetTop marks the cell with the given id as the library's top cell.
func (l *Library) SetTop(id CellID) error {
	if l.Cell(id) == nil {
		return &StructuralError{Op: "SetTop", Cell: id, Message: "id does not name a cell"}
	}
	l.top = id
	return nil
}

// ChildOf resolves an instance's child definition.
func (l *Library) ChildOf(inst *Instance) Def {
	return l.Def(inst.child)
}

// SetDefName renames a definition. Used by the uniquifier; construction-time
// naming goes through the Builder.
func (l *Library) SetDefName(id CellID, name string) error {
	switch d := l.Def(id).(type) {
	case *Cell:
		d.name = name
	case *Primitive:
		d.name = name
	case *BlackBox:
		d.name = name
	default:
		return &StructuralError{Op: "SetDefName", Cell: id, Message: "unknown definition id"}
	}
	return nil
}

// SetSignalName renames a signal within a cell. Used by the uniquifier.
func (l *Library) SetSignalName(cell CellID, sig SignalID, name string) error {
	c := l.Cell(cell)
	if c == nil {
		return &StructuralError{Op: "SetSignalName", Cell: cell, Message: "id does not name a cell"}
	}
	s := c.Signal(sig)
	if s == nil {
		return &StructuralError{Op: "SetSignalName", Cell: cell, Signal: sig, Message: "unknown signal id"}
	}
	s.Name = name
	return nil
}

// SetInstanceEmitText marks an instance for literal emission with the given
// rendered text. Set by the blackbox resolver; read by netlist backends.
func (l *Library) SetInstanceEmitText(cell CellID, inst InstanceID, text string) error {
	c := l.Cell(cell)
	if c == nil {
		return &StructuralError{Op: "SetInstanceEmitText", Cell: cell, Message: "id does not name a cell"}
	}
	i := c.Instance(inst)
	if i == nil {
		return &StructuralError{Op: "SetInstanceEmitText", Cell: cell, Instance: inst, Message: "unknown instance id"}
	}
	i.emitText = text
	i.resolved = true
	return nil
}

// AppendSignal adds a signal to a cell after construction. Passes use this
// when they introduce fresh parent-scoped signals; the same width rules as
// Builder.AddSignal apply.
func (l *Library) AppendSignal(cell CellID, name string, width int) (SignalID, error) {
	c := l.Cell(cell)
	if c == nil {
		return -1, structErr("AppendSignal", cell, "id does not name a cell")
	}
	if width < 1 {
		return -1, &StructuralError{
			Op: "AppendSignal", Cell: cell, Signal: -1, Instance: -1,
			Message:  fmt.Sprintf("signal %q must have width >= 1", name),
			Expected: 1, Actual: width,
		}
	}
	id := SignalID(len(c.signals))
	c.signals = append(c.signals, &Signal{Name: name, Width: width})
	return id, nil
}

// AppendInstance places a child definition inside a cell after construction,
// with the same connection checks as Builder.AddInstance.
func (l *Library) AppendInstance(cell CellID, name string, child CellID, conns []Slice, params map[string]ParamValue) (InstanceID, error) {
	c := l.Cell(cell)
	if c == nil {
		return -1, structErr("AppendInstance", cell, "id does not name a cell")
	}
	childDef := l.Def(child)
	if childDef == nil {
		return -1, structErr("AppendInstance", cell, fmt.Sprintf("instance %q references unknown definition %d", name, child))
	}
	specs := childDef.PortSpecs()
	if len(conns) != len(specs) {
		return -1, &StructuralError{
			Op: "AppendInstance", Cell: cell, Signal: -1, Instance: -1,
			Message:  fmt.Sprintf("instance %q of %q: connection count does not match port count", name, childDef.Name()),
			Expected: len(specs), Actual: len(conns),
		}
	}
	for i, s := range conns {
		if err := checkSlice(c, cell, "AppendInstance", name, s); err != nil {
			return -1, err
		}
		if got := c.SliceWidth(s); got != specs[i].Width {
			return -1, &StructuralError{
				Op: "AppendInstance", Cell: cell, Signal: s.Signal, Instance: -1,
				Message:  fmt.Sprintf("instance %q: width mismatch on port %q of %q", name, specs[i].Name, childDef.Name()),
				Expected: specs[i].Width, Actual: got,
			}
		}
	}
	id := InstanceID(len(c.instances))
	c.instances = append(c.instances, &Instance{
		id: id, name: name, child: child,
		conns:  cloneSlices(conns),
		params: cloneParams(params),
	})
	return id, nil
}

// RemoveInstance deletes an instance from a cell. The instance's id is
// retired, not reused: the slot reads as nil afterwards. Used by the
// flattener.
func (l *Library) RemoveInstance(cell CellID, inst InstanceID) error {
	c := l.Cell(cell)
	if c == nil {
		return &StructuralError{Op: "RemoveInstance", Cell: cell, Message: "id does not name a cell"}
	}
	if c.Instance(inst) == nil {
		return &StructuralError{Op: "RemoveInstance", Cell: cell, Instance: inst, Message: "unknown instance id"}
	}
	c.instances[inst] = nil
	return nil
}

// RemoveDef deletes a definition from the library. The id is retired, not
// reused. It is the caller's responsibility that no live instance still
// references the definition; the validator reports any that do.
func (l *Library) RemoveDef(id CellID) error {
	if l.Def(id) == nil {
		return &StructuralError{Op: "RemoveDef", Cell: id, Message: "unknown definition id"}
	}
	if l.top == id {
		l.top = -1
	}
	l.defs[id] = nil
	return nil
}

// InstantiationCounts returns, for every definition id, how many live
// instances across the library reference it.
func (l *Library) InstantiationCounts() map[CellID]int {
	counts := make(map[CellID]int)
	for _, d := range l.defs {
		c, ok := d.(*Cell)
		if !ok {
			continue
		}
		for _, inst := range c.instances {
			if inst != nil {
				counts[inst.child]++
			}
		}
	}
	return counts
}

// Merge appends every definition of src into l, remapping child references
// to the new id space. The top cell of l is preserved; name collisions
// introduced by the merge are left for the uniquifier to resolve.
func (l *Library) Merge(src *Library) (map[CellID]CellID, error) {
	// Two passes: allocate ids first so forward references resolve.
	remap := make(map[CellID]CellID, len(src.defs))
	next := CellID(len(l.defs))
	for id, d := range src.defs {
		if d == nil {
			continue
		}
		remap[CellID(id)] = next
		next++
	}
	for id := 0; id < len(src.defs); id++ {
		d := src.defs[id]
		if d == nil {
			continue
		}
		clone, err := cloneDef(d, remap[CellID(id)], remap)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", d.Name(), err)
		}
		l.defs = append(l.defs, clone)
	}
	return remap, nil
}

// cloneDef deep-copies a definition, assigning it a new id and rewriting
// instance child references through remap.
func cloneDef(d Def, id CellID, remap map[CellID]CellID) (Def, error) {
	switch src := d.(type) {
	case *Primitive:
		return &Primitive{
			id:     id,
			name:   src.name,
			kind:   src.kind,
			ports:  append([]PortSpec(nil), src.ports...),
			params: cloneParams(src.params),
		}, nil
	case *BlackBox:
		templates := make(map[string]string, len(src.templates))
		for k, v := range src.templates {
			templates[k] = v
		}
		return &BlackBox{
			id:        id,
			name:      src.name,
			ports:     append([]PortSpec(nil), src.ports...),
			params:    cloneParams(src.params),
			templates: templates,
		}, nil
	case *Cell:
		c := &Cell{
			id:     id,
			name:   src.name,
			ports:  append([]Port(nil), src.ports...),
			params: cloneParams(src.params),
		}
		for _, sig := range src.signals {
			if sig == nil {
				c.signals = append(c.signals, nil)
				continue
			}
			copied := *sig
			c.signals = append(c.signals, &copied)
		}
		for _, inst := range src.instances {
			if inst == nil {
				c.instances = append(c.instances, nil)
				continue
			}
			child, ok := remap[inst.child]
			if !ok {
				return nil, fmt.Errorf("instance %s references definition %d outside the merged set", inst.name, inst.child)
			}
			c.instances = append(c.instances, &Instance{
				id:       inst.id,
				name:     inst.name,
				child:    child,
				conns:    cloneSlices(inst.conns),
				params:   cloneParams(inst.params),
				emitText: inst.emitText,
				resolved: inst.resolved,
			})
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown definition type %T", d)
	}
}

func cloneParams(params map[string]ParamValue) map[string]ParamValue {
	if params == nil {
		return nil
	}
	out := make(map[string]ParamValue, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func cloneSlices(conns []Slice) []Slice {
	out := make([]Slice, len(conns))
	for i, s := range conns {
		out[i] = s
		if s.Range != nil {
			r := *s.Range
			out[i].Range = &r
		}
	}
	return out
}
