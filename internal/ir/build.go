package ir

import "fmt"

// StructuralError reports a construction-time violation: an unknown id, a
// width mismatch, or a malformed connection. It is raised immediately at the
// offending call, never deferred to validation.
type StructuralError struct {
	Op       string // the construction operation that failed
	Cell     CellID
	Signal   SignalID
	Instance InstanceID
	Message  string
	Expected int // expected width or arity, when relevant
	Actual   int
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if e.Expected != 0 || e.Actual != 0 {
		msg += fmt.Sprintf(" (expected %d, got %d)", e.Expected, e.Actual)
	}
	if e.Cell >= 0 {
		msg += fmt.Sprintf(" [cell=%d]", e.Cell)
	}
	return msg
}

func structErr(op string, cell CellID, msg string) *StructuralError {
	return &StructuralError{Op: op, Cell: cell, Signal: -1, Instance: -1, Message: msg}
}

// Builder constructs a Library through append-only operations. Every
// operation fails fast with *StructuralError on an unknown id or width
// mismatch, so most invariant violations surface at build time. Finish
// freezes the builder and hands the Library to the pass pipeline.
type Builder struct {
	lib  *Library
	done bool
}

// NewBuilder starts a new empty library with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{lib: &Library{name: name, top: -1}}
}

func (b *Builder) check(op string) error {
	if b.done {
		return structErr(op, -1, "builder is frozen: Finish was already called")
	}
	return nil
}

// AddCell registers an empty cell and returns its id.
func (b *Builder) AddCell(name string) (CellID, error) {
	if err := b.check("AddCell"); err != nil {
		return -1, err
	}
	id := CellID(len(b.lib.defs))
	b.lib.defs = append(b.lib.defs, &Cell{id: id, name: name, params: map[string]ParamValue{}})
	return id, nil
}

// AddPrimitive registers a leaf device definition and returns its id.
func (b *Builder) AddPrimitive(name string, kind DeviceKind, ports []PortSpec, params map[string]ParamValue) (CellID, error) {
	if err := b.check("AddPrimitive"); err != nil {
		return -1, err
	}
	if !IsKnownDeviceKind(kind) {
		return -1, structErr("AddPrimitive", -1, fmt.Sprintf("unknown device kind %q", kind))
	}
	if len(ports) == 0 {
		return -1, structErr("AddPrimitive", -1, fmt.Sprintf("primitive %q must declare at least one port", name))
	}
	for i, p := range ports {
		if p.Width < 1 {
			return -1, &StructuralError{
				Op: "AddPrimitive", Cell: -1, Signal: -1, Instance: -1,
				Message:  fmt.Sprintf("port %d (%q) of primitive %q has width < 1", i, p.Name, name),
				Expected: 1, Actual: p.Width,
			}
		}
	}
	id := CellID(len(b.lib.defs))
	b.lib.defs = append(b.lib.defs, &Primitive{
		id: id, name: name, kind: kind,
		ports:  append([]PortSpec(nil), ports...),
		params: cloneParams(params),
	})
	return id, nil
}

// AddBlackBox registers an opaque definition with per-dialect body templates
// and returns its id. The declared port order is the binding contract for
// every instantiation site.
func (b *Builder) AddBlackBox(name string, ports []PortSpec, params map[string]ParamValue, templates map[string]string) (CellID, error) {
	if err := b.check("AddBlackBox"); err != nil {
		return -1, err
	}
	if len(ports) == 0 {
		return -1, structErr("AddBlackBox", -1, fmt.Sprintf("blackbox %q must declare at least one port", name))
	}
	for i, p := range ports {
		if p.Width < 1 {
			return -1, &StructuralError{
				Op: "AddBlackBox", Cell: -1, Signal: -1, Instance: -1,
				Message:  fmt.Sprintf("port %d (%q) of blackbox %q has width < 1", i, p.Name, name),
				Expected: 1, Actual: p.Width,
			}
		}
	}
	tcopy := make(map[string]string, len(templates))
	for k, v := range templates {
		tcopy[k] = v
	}
	id := CellID(len(b.lib.defs))
	b.lib.defs = append(b.lib.defs, &BlackBox{
		id: id, name: name,
		ports:     append([]PortSpec(nil), ports...),
		params:    cloneParams(params),
		templates: tcopy,
	})
	return id, nil
}

// AddSignal adds a signal of the given bit-width to a cell.
func (b *Builder) AddSignal(cell CellID, name string, width int) (SignalID, error) {
	if err := b.check("AddSignal"); err != nil {
		return -1, err
	}
	c := b.lib.Cell(cell)
	if c == nil {
		return -1, structErr("AddSignal", cell, "id does not name a cell")
	}
	if width < 1 {
		return -1, &StructuralError{
			Op: "AddSignal", Cell: cell, Signal: -1, Instance: -1,
			Message:  fmt.Sprintf("signal %q must have width >= 1", name),
			Expected: 1, Actual: width,
		}
	}
	id := SignalID(len(c.signals))
	c.signals = append(c.signals, &Signal{Name: name, Width: width})
	return id, nil
}

// AddPort appends a signal to the cell's ordered port list.
func (b *Builder) AddPort(cell CellID, sig SignalID, dir Direction) error {
	if err := b.check("AddPort"); err != nil {
		return err
	}
	c := b.lib.Cell(cell)
	if c == nil {
		return structErr("AddPort", cell, "id does not name a cell")
	}
	if c.Signal(sig) == nil {
		return &StructuralError{Op: "AddPort", Cell: cell, Signal: sig, Instance: -1, Message: "unknown signal id"}
	}
	for _, p := range c.ports {
		if p.Signal == sig {
			return &StructuralError{Op: "AddPort", Cell: cell, Signal: sig, Instance: -1, Message: "signal is already a port"}
		}
	}
	c.ports = append(c.ports, Port{Signal: sig, Dir: dir})
	return nil
}

// SetParamDefault declares a parameter on a definition with its default
// value, or replaces an existing default.
func (b *Builder) SetParamDefault(def CellID, name string, value ParamValue) error {
	if err := b.check("SetParamDefault"); err != nil {
		return err
	}
	d := b.lib.Def(def)
	if d == nil {
		return structErr("SetParamDefault", def, "unknown definition id")
	}
	switch v := d.(type) {
	case *Cell:
		if v.params == nil {
			v.params = map[string]ParamValue{}
		}
		v.params[name] = value
	case *Primitive:
		if v.params == nil {
			v.params = map[string]ParamValue{}
		}
		v.params[name] = value
	case *BlackBox:
		if v.params == nil {
			v.params = map[string]ParamValue{}
		}
		v.params[name] = value
	}
	return nil
}

// AddInstance places a child definition inside a cell. conns is positional
// and must supply exactly one slice per child port, each matching the
// declared port width; param overrides must name declared parameters.
func (b *Builder) AddInstance(cell CellID, name string, child CellID, conns []Slice, params map[string]ParamValue) (InstanceID, error) {
	if err := b.check("AddInstance"); err != nil {
		return -1, err
	}
	c := b.lib.Cell(cell)
	if c == nil {
		return -1, structErr("AddInstance", cell, "id does not name a cell")
	}
	childDef := b.lib.Def(child)
	if childDef == nil {
		return -1, structErr("AddInstance", cell, fmt.Sprintf("instance %q references unknown definition %d", name, child))
	}
	specs := childDef.PortSpecs()
	if len(conns) != len(specs) {
		return -1, &StructuralError{
			Op: "AddInstance", Cell: cell, Signal: -1, Instance: -1,
			Message:  fmt.Sprintf("instance %q of %q: connection count does not match port count", name, childDef.Name()),
			Expected: len(specs), Actual: len(conns),
		}
	}
	for i, s := range conns {
		if err := checkSlice(c, cell, "AddInstance", name, s); err != nil {
			return -1, err
		}
		if got := c.SliceWidth(s); got != specs[i].Width {
			return -1, &StructuralError{
				Op: "AddInstance", Cell: cell, Signal: s.Signal, Instance: -1,
				Message:  fmt.Sprintf("instance %q: width mismatch on port %q of %q", name, specs[i].Name, childDef.Name()),
				Expected: specs[i].Width, Actual: got,
			}
		}
	}
	declared := childDef.Params()
	for pname := range params {
		if _, ok := declared[pname]; !ok {
			return -1, structErr("AddInstance", cell,
				fmt.Sprintf("instance %q overrides undeclared parameter %q of %q", name, pname, childDef.Name()))
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

// Connect rewires one positional connection of an existing instance. The
// replacement slice must match the child port's declared width.
func (b *Builder) Connect(cell CellID, inst InstanceID, port int, s Slice) error {
	if err := b.check("Connect"); err != nil {
		return err
	}
	c := b.lib.Cell(cell)
	if c == nil {
		return structErr("Connect", cell, "id does not name a cell")
	}
	i := c.Instance(inst)
	if i == nil {
		return &StructuralError{Op: "Connect", Cell: cell, Signal: -1, Instance: inst, Message: "unknown instance id"}
	}
	if port < 0 || port >= len(i.conns) {
		return &StructuralError{
			Op: "Connect", Cell: cell, Signal: -1, Instance: inst,
			Message:  fmt.Sprintf("port index %d out of range", port),
			Expected: len(i.conns), Actual: port,
		}
	}
	if err := checkSlice(c, cell, "Connect", i.name, s); err != nil {
		return err
	}
	specs := b.lib.Def(i.child).PortSpecs()
	if got := c.SliceWidth(s); got != specs[port].Width {
		return &StructuralError{
			Op: "Connect", Cell: cell, Signal: s.Signal, Instance: inst,
			Message:  fmt.Sprintf("width mismatch on port %q", specs[port].Name),
			Expected: specs[port].Width, Actual: got,
		}
	}
	i.conns[port] = s
	if s.Range != nil {
		r := *s.Range
		i.conns[port].Range = &r
	}
	return nil
}

// checkSlice verifies that a slice resolves inside the cell's signal table
// and its range lies within the signal's bounds.
func checkSlice(c *Cell, cell CellID, op, inst string, s Slice) error {
	sig := c.Signal(s.Signal)
	if sig == nil {
		return &StructuralError{
			Op: op, Cell: cell, Signal: s.Signal, Instance: -1,
			Message: fmt.Sprintf("instance %q connects to unknown signal id %d", inst, s.Signal),
		}
	}
	if s.Range == nil {
		return nil
	}
	if s.Range.Start < 0 || s.Range.End > sig.Width || s.Range.Start >= s.Range.End {
		return &StructuralError{
			Op: op, Cell: cell, Signal: s.Signal, Instance: -1,
			Message:  fmt.Sprintf("instance %q: bit range [%d:%d) out of bounds for signal %q", inst, s.Range.Start, s.Range.End, sig.Name),
			Expected: sig.Width, Actual: s.Range.End,
		}
	}
	return nil
}

// SetTop marks the library's top cell.
func (b *Builder) SetTop(id CellID) error {
	if err := b.check("SetTop"); err != nil {
		return err
	}
	return b.lib.SetTop(id)
}

// Finish freezes the builder and returns the constructed library. Further
// builder calls fail.
func (b *Builder) Finish() *Library {
	b.done = true
	return b.lib
}
