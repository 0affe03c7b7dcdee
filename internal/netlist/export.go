package netlist

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/voltlab/netir/internal/ir"
)

// Dialect is the capability contract of one netlist format. Emission methods
// write complete lines; Export supplies net names already expanded to the
// dialect's bus-bit syntax and instance parameters already overlaid on the
// child's declared defaults.
type Dialect interface {
	// Name tags the dialect. Blackbox templates are looked up under it.
	Name() string

	// IdentRules reports the legal identifier charset and length limit
	// that exported names must satisfy.
	IdentRules() ir.IdentRules

	// SupportsHierarchy reports whether the dialect can express subcircuit
	// definitions. Flat-only dialects require a pre-flattened library.
	SupportsHierarchy() bool

	// FormatBit renders one bit of a bus net, e.g. "data[3]".
	FormatBit(name string, bit int) string

	EmitHeader(w io.Writer, lib *ir.Library) error
	EmitCellHeader(w io.Writer, name string, ports []string) error
	EmitInstance(w io.Writer, indent, name string, nets []string, child string) error
	EmitPrimitive(w io.Writer, indent, name string, kind ir.DeviceKind, nets []string, params map[string]ir.ParamValue) error
	EmitBlackBox(w io.Writer, indent, text string) error
	EmitCellFooter(w io.Writer, name string) error
	EmitFooter(w io.Writer, lib *ir.Library) error
}

// Options adjusts how Export renders the top cell.
type Options struct {
	// InlineTop emits the top cell's body at file scope instead of as a
	// subcircuit definition. The top cell's first port is the testbench
	// ground and is renamed to the global net "0".
	InlineTop bool
}

// ExportError aborts one export: an unsupported device kind, an unresolved
// blackbox, or a hierarchy the dialect cannot express.
type ExportError struct {
	Dialect string
	Cell    ir.CellID
	Message string
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.Cell < 0 {
		return fmt.Sprintf("export %s: %s", e.Dialect, e.Message)
	}
	return fmt.Sprintf("export %s: %s (cell=%d)", e.Dialect, e.Message, e.Cell)
}

// Export renders lib as netlist text in the given dialect. The library must
// be finalized: validated, uniquified under d.IdentRules(), flattened if the
// dialect is flat-only, and blackbox-resolved for d.Name(). Export only
// reads lib.
func Export(w io.Writer, lib *ir.Library, d Dialect, opts Options) error {
	bw := bufio.NewWriter(w)
	if err := d.EmitHeader(bw, lib); err != nil {
		return err
	}

	top, hasTop := lib.Top()
	if !d.SupportsHierarchy() {
		if !hasTop {
			return &ExportError{Dialect: d.Name(), Cell: -1,
				Message: "flat dialect requires a top cell"}
		}
		if err := checkFlat(lib, d); err != nil {
			return err
		}
	}
	if opts.InlineTop && !hasTop {
		return &ExportError{Dialect: d.Name(), Cell: -1,
			Message: "inline top requested but no top cell is set"}
	}

	for _, id := range emitOrder(lib) {
		c := lib.Cell(id)
		if c == nil {
			continue
		}
		if !d.SupportsHierarchy() && (!hasTop || id != top) {
			continue
		}
		bare := (opts.InlineTop || !d.SupportsHierarchy()) && hasTop && id == top
		ground := ""
		if opts.InlineTop && bare {
			g, err := groundNet(c, d)
			if err != nil {
				return err
			}
			ground = g
		}
		if err := exportCell(bw, lib, d, c, bare, ground); err != nil {
			return err
		}
	}
	if err := d.EmitFooter(bw, lib); err != nil {
		return err
	}
	return bw.Flush()
}

// groundNet returns the name of the inline top's ground: its first port,
// which must be a single-bit signal.
func groundNet(c *ir.Cell, d Dialect) (string, error) {
	ports := c.Ports()
	if len(ports) == 0 {
		return "", &ExportError{Dialect: d.Name(), Cell: c.ID(),
			Message: "inline top cell has no ground port"}
	}
	sig := c.Signal(ports[0].Signal)
	if sig.Width != 1 {
		return "", &ExportError{Dialect: d.Name(), Cell: c.ID(),
			Message: fmt.Sprintf("ground port %q must have width 1", sig.Name)}
	}
	return sig.Name, nil
}

// checkFlat rejects any surviving cell-typed instance for flat-only
// dialects.
func checkFlat(lib *ir.Library, d Dialect) error {
	for _, def := range lib.Defs() {
		c, ok := def.(*ir.Cell)
		if !ok {
			continue
		}
		for _, inst := range c.Instances() {
			if inst == nil {
				continue
			}
			if child, ok := lib.ChildOf(inst).(*ir.Cell); ok {
				return &ExportError{Dialect: d.Name(), Cell: c.ID(),
					Message: fmt.Sprintf("instance %q of cell %q requires a flattened library",
						inst.Name(), child.Name())}
			}
		}
	}
	return nil
}

func exportCell(w io.Writer, lib *ir.Library, d Dialect, c *ir.Cell, bare bool, ground string) error {
	indent := "  "
	if bare {
		indent = ""
	} else {
		var ports []string
		for _, p := range c.Ports() {
			sig := c.Signal(p.Signal)
			if sig.Width == 1 {
				ports = append(ports, sig.Name)
				continue
			}
			for i := 0; i < sig.Width; i++ {
				ports = append(ports, d.FormatBit(sig.Name, i))
			}
		}
		if err := d.EmitCellHeader(w, c.Name(), ports); err != nil {
			return err
		}
	}

	for _, inst := range c.Instances() {
		if inst == nil {
			continue
		}
		if text, ok := inst.EmitText(); ok {
			if err := d.EmitBlackBox(w, indent, text); err != nil {
				return err
			}
			continue
		}
		nets := instanceNets(c, inst, ground, d.FormatBit)
		switch child := lib.ChildOf(inst).(type) {
		case *ir.Cell:
			if err := d.EmitInstance(w, indent, inst.Name(), nets, child.Name()); err != nil {
				return err
			}
		case *ir.Primitive:
			params := overlayParams(child.Params(), inst.Params())
			if err := d.EmitPrimitive(w, indent, inst.Name(), child.Kind(), nets, params); err != nil {
				return &ExportError{Dialect: d.Name(), Cell: c.ID(),
					Message: fmt.Sprintf("instance %q of %q: %v", inst.Name(), child.Name(), err)}
			}
		case *ir.BlackBox:
			return &ExportError{Dialect: d.Name(), Cell: c.ID(),
				Message: fmt.Sprintf("instance %q of blackbox %q is unresolved", inst.Name(), child.Name())}
		default:
			return &ExportError{Dialect: d.Name(), Cell: c.ID(),
				Message: fmt.Sprintf("instance %q references a removed definition", inst.Name())}
		}
	}

	if !bare {
		if err := d.EmitCellFooter(w, c.Name()); err != nil {
			return err
		}
	}
	return nil
}

// instanceNets expands an instance's positional connections into dialect
// net text: a bare name for a whole single-bit signal (renaming the inline
// ground to "0"), otherwise one formatted name per bit.
func instanceNets(c *ir.Cell, inst *ir.Instance, ground string, format func(string, int) string) []string {
	var nets []string
	for _, s := range inst.Conns() {
		sig := c.Signal(s.Signal)
		if sig == nil {
			nets = append(nets, "?")
			continue
		}
		if s.Range == nil && sig.Width == 1 {
			// Ground renaming never applies to buses.
			if ground != "" && sig.Name == ground {
				nets = append(nets, "0")
			} else {
				nets = append(nets, sig.Name)
			}
			continue
		}
		start, end := 0, sig.Width
		if s.Range != nil {
			start, end = s.Range.Start, s.Range.End
		}
		for i := start; i < end; i++ {
			nets = append(nets, format(sig.Name, i))
		}
	}
	return nets
}

// emitOrder returns cell ids children-first with the top cell last, so every
// subcircuit definition precedes its uses and the inline top closes the
// file.
func emitOrder(lib *ir.Library) []ir.CellID {
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
	for _, def := range lib.Defs() {
		if c, ok := def.(*ir.Cell); ok {
			visit(c.ID())
		}
	}
	if top, ok := lib.Top(); ok {
		out := order[:0]
		for _, id := range order {
			if id != top {
				out = append(out, id)
			}
		}
		order = append(out, top)
	}
	return order
}

// overlayParams applies instantiation-site overrides on declared defaults.
func overlayParams(declared, overrides map[string]ir.ParamValue) map[string]ir.ParamValue {
	out := make(map[string]ir.ParamValue, len(declared))
	for name, v := range declared {
		out[name] = v
	}
	for name, v := range overrides {
		out[name] = v
	}
	return out
}

// formatParams renders params as sorted "name=literal" assignments. Boolean
// parameters have no netlist value and are skipped, as are the names in
// skip (already emitted positionally by the caller).
func formatParams(params map[string]ir.ParamValue, skip ...string) []string {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	names := make([]string, 0, len(params))
	for name, v := range params {
		if skipped[name] {
			continue
		}
		if _, ok := v.(ir.ParamBool); ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + "=" + params[n].Literal()
	}
	return out
}
