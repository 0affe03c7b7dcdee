package ir

import "fmt"

// CellID identifies a definition (cell, primitive, or blackbox) within one
// Library. Ids are dense, assigned in registration order, and never reused.
type CellID int

// SignalID identifies a signal within one Cell.
type SignalID int

// InstanceID identifies an instance within one Cell.
type InstanceID int

// Direction describes how a port is driven relative to its cell.
type Direction int

const (
	DirInOut Direction = iota
	DirInput
	DirOutput
)

// String returns the lowercase direction name.
func (d Direction) String() string {
	switch d {
	case DirInput:
		return "input"
	case DirOutput:
		return "output"
	default:
		return "inout"
	}
}

// ParseDirection maps a direction name to its Direction value.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "inout", "":
		return DirInOut, nil
	case "input", "in":
		return DirInput, nil
	case "output", "out":
		return DirOutput, nil
	default:
		return DirInOut, fmt.Errorf("unknown port direction %q", s)
	}
}

// DeviceKind is the closed set of primitive device tags. Dialects map each
// kind to an emission rule; an unmapped kind is a fatal export error.
type DeviceKind string

const (
	Resistor  DeviceKind = "resistor"
	Capacitor DeviceKind = "capacitor"
	Inductor  DeviceKind = "inductor"
	Vsource   DeviceKind = "vsource"
	Isource   DeviceKind = "isource"
	Diode     DeviceKind = "diode"
	Mosfet    DeviceKind = "mosfet"
	Bjt       DeviceKind = "bjt"
)

// KnownDeviceKinds lists every device kind the IR accepts, in stable order.
var KnownDeviceKinds = []DeviceKind{
	Resistor, Capacitor, Inductor, Vsource, Isource, Diode, Mosfet, Bjt,
}

// IsKnownDeviceKind reports whether k is a member of the closed kind set.
func IsKnownDeviceKind(k DeviceKind) bool {
	for _, known := range KnownDeviceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Signal is a named wire or bus internal to a cell. Width is in bits and is
// always at least 1.
type Signal struct {
	Name  string
	Width int
}

// BitRange selects the half-open bit span [Start, End) of a signal.
type BitRange struct {
	Start int
	End   int
}

// Width returns the number of bits the range covers.
func (r BitRange) Width() int { return r.End - r.Start }

// Slice references a signal, optionally restricted to a bit sub-range.
// Instances connect to slices, never to whole signals directly, which is
// what makes bus slicing work.
type Slice struct {
	Signal SignalID
	Range  *BitRange // nil selects the whole signal
}

// WholeSignal returns a Slice covering every bit of sig.
func WholeSignal(sig SignalID) Slice {
	return Slice{Signal: sig}
}

// Bits returns a Slice covering bits [start, end) of sig.
func Bits(sig SignalID, start, end int) Slice {
	return Slice{Signal: sig, Range: &BitRange{Start: start, End: end}}
}

// Bit returns a Slice covering the single bit i of sig.
func Bit(sig SignalID, i int) Slice {
	return Bits(sig, i, i+1)
}

// PortSpec is the externally visible shape of one port of any definition.
// Connection checking is done against PortSpecs, so cells, primitives, and
// blackboxes all present the same contract to their instantiation sites.
type PortSpec struct {
	Name  string
	Width int
	Dir   Direction
}

// Def is the sealed interface over the three definition kinds a Library can
// hold: *Cell, *Primitive, and *BlackBox.
type Def interface {
	ID() CellID
	Name() string
	PortSpecs() []PortSpec
	Params() map[string]ParamValue

	def() // sealed
}

// Cell is a hierarchical circuit definition: ordered ports referencing its
// own signals, internal signals, and an ordered instance list.
type Cell struct {
	id        CellID
	name      string
	signals   []*Signal // indexed by SignalID
	ports     []Port
	instances []*Instance // indexed by InstanceID
	params    map[string]ParamValue
}

// Port binds one position of a cell's port list to an internal signal.
type Port struct {
	Signal SignalID
	Dir    Direction
}

func (*Cell) def() {}

// ID returns the cell's library-scoped id.
func (c *Cell) ID() CellID { return c.id }

// Name returns the cell's name.
func (c *Cell) Name() string { return c.name }

// Params returns the cell's declared parameters and their defaults.
func (c *Cell) Params() map[string]ParamValue { return c.params }

// Ports returns the cell's ordered port list.
func (c *Cell) Ports() []Port { return c.ports }

// PortSpecs implements Def.
func (c *Cell) PortSpecs() []PortSpec {
	specs := make([]PortSpec, len(c.ports))
	for i, p := range c.ports {
		sig := c.signals[p.Signal]
		specs[i] = PortSpec{Name: sig.Name, Width: sig.Width, Dir: p.Dir}
	}
	return specs
}

// Signals returns the cell's signals indexed by SignalID.
func (c *Cell) Signals() []*Signal { return c.signals }

// Signal returns the signal with the given id, or nil if out of range.
func (c *Cell) Signal(id SignalID) *Signal {
	if id < 0 || int(id) >= len(c.signals) {
		return nil
	}
	return c.signals[id]
}

// SignalNamed returns the id of the signal with the given name.
func (c *Cell) SignalNamed(name string) (SignalID, bool) {
	for id, sig := range c.signals {
		if sig.Name == name {
			return SignalID(id), true
		}
	}
	return -1, false
}

// Instances returns the cell's instances indexed by InstanceID.
func (c *Cell) Instances() []*Instance { return c.instances }

// Instance returns the instance with the given id, or nil if out of range.
func (c *Cell) Instance(id InstanceID) *Instance {
	if id < 0 || int(id) >= len(c.instances) {
		return nil
	}
	return c.instances[id]
}

// IsPort reports whether sig backs one of the cell's ports.
func (c *Cell) IsPort(sig SignalID) bool {
	for _, p := range c.ports {
		if p.Signal == sig {
			return true
		}
	}
	return false
}

// SliceWidth returns the bit-width of s resolved against this cell's
// signals. Returns 0 for an unresolvable slice.
func (c *Cell) SliceWidth(s Slice) int {
	sig := c.Signal(s.Signal)
	if sig == nil {
		return 0
	}
	if s.Range == nil {
		return sig.Width
	}
	return s.Range.Width()
}

// Instance is a placement of a child definition within a cell. Connections
// are positional: conns[i] wires the child's i-th port.
type Instance struct {
	id       InstanceID
	name     string
	child    CellID
	conns    []Slice
	params   map[string]ParamValue
	emitText string // rendered blackbox body, set by the resolver
	resolved bool
}

// ID returns the instance's cell-scoped id.
func (i *Instance) ID() InstanceID { return i.id }

// Name returns the instance name.
func (i *Instance) Name() string { return i.name }

// Child returns the id of the instantiated definition.
func (i *Instance) Child() CellID { return i.child }

// Conns returns the positional connection slices, one per child port.
func (i *Instance) Conns() []Slice { return i.conns }

// Params returns the instance's parameter overrides.
func (i *Instance) Params() map[string]ParamValue { return i.params }

// EmitText returns the literal text this instance should emit, if the
// blackbox resolver has marked it for literal emission.
func (i *Instance) EmitText() (string, bool) { return i.emitText, i.resolved }

// Primitive is a leaf device definition. It has no internal hierarchy and
// never references another definition.
type Primitive struct {
	id     CellID
	name   string
	kind   DeviceKind
	ports  []PortSpec
	params map[string]ParamValue
}

func (*Primitive) def() {}

// ID returns the primitive's library-scoped id.
func (p *Primitive) ID() CellID { return p.id }

// Name returns the primitive's name.
func (p *Primitive) Name() string { return p.name }

// Kind returns the device kind tag.
func (p *Primitive) Kind() DeviceKind { return p.kind }

// PortSpecs implements Def.
func (p *Primitive) PortSpecs() []PortSpec { return p.ports }

// Params returns the primitive's declared parameters and their defaults.
func (p *Primitive) Params() map[string]ParamValue { return p.params }

// BlackBox is a definition whose body is opaque literal text per export
// dialect. Its declared port order is a binding contract: instances connect
// position-for-position and dialects splice connected net names into the
// template.
type BlackBox struct {
	id        CellID
	name      string
	ports     []PortSpec
	params    map[string]ParamValue
	templates map[string]string // dialect name -> template text
}

func (*BlackBox) def() {}

// ID returns the blackbox's library-scoped id.
func (b *BlackBox) ID() CellID { return b.id }

// Name returns the blackbox's name.
func (b *BlackBox) Name() string { return b.name }

// PortSpecs implements Def.
func (b *BlackBox) PortSpecs() []PortSpec { return b.ports }

// Params returns the blackbox's declared parameters and their defaults.
func (b *BlackBox) Params() map[string]ParamValue { return b.params }

// Template returns the body template registered for the given dialect.
func (b *BlackBox) Template(dialect string) (string, bool) {
	t, ok := b.templates[dialect]
	return t, ok
}

// Dialects returns the dialect names a template is registered for, in
// unspecified order.
func (b *BlackBox) Dialects() []string {
	names := make([]string, 0, len(b.templates))
	for name := range b.templates {
		names = append(names, name)
	}
	return names
}
