package netlist

import (
	"fmt"
	"io"
	"strings"

	"github.com/voltlab/netir/internal/ir"
)

// Spice emits classic SPICE decks: .SUBCKT/.ENDS definitions, element
// prefix letters per device kind, and a .END trailer.
type Spice struct{}

// Name implements Dialect.
func (Spice) Name() string { return "spice" }

// SupportsHierarchy implements Dialect.
func (Spice) SupportsHierarchy() bool { return true }

// IdentRules implements Dialect.
func (Spice) IdentRules() ir.IdentRules {
	return ir.IdentRules{MaxLen: 128, Legal: asciiWord}
}

// FormatBit implements Dialect.
func (Spice) FormatBit(name string, bit int) string {
	return fmt.Sprintf("%s[%d]", name, bit)
}

// EmitHeader implements Dialect.
func (Spice) EmitHeader(w io.Writer, lib *ir.Library) error {
	_, err := fmt.Fprintf(w, "* %s\n* Generated netlist. Do not edit by hand.\n\n", lib.Name())
	return err
}

// EmitCellHeader implements Dialect.
func (Spice) EmitCellHeader(w io.Writer, name string, ports []string) error {
	_, err := fmt.Fprintf(w, ".SUBCKT %s %s\n", name, strings.Join(ports, " "))
	return err
}

// EmitInstance implements Dialect.
func (Spice) EmitInstance(w io.Writer, indent, name string, nets []string, child string) error {
	_, err := fmt.Fprintf(w, "%s%s %s %s\n", indent, spicePrefix("X", name), strings.Join(nets, " "), child)
	return err
}

// spiceElements maps device kinds to their element prefix letter and the
// parameter emitted positionally as the element value.
var spiceElements = map[ir.DeviceKind]struct {
	prefix string
	value  string
}{
	ir.Resistor:  {"R", "r"},
	ir.Capacitor: {"C", "c"},
	ir.Inductor:  {"L", "l"},
	ir.Vsource:   {"V", "dc"},
	ir.Isource:   {"I", "dc"},
	ir.Diode:     {"D", "model"},
	ir.Mosfet:    {"M", "model"},
	ir.Bjt:       {"Q", "model"},
}

// EmitPrimitive implements Dialect.
func (Spice) EmitPrimitive(w io.Writer, indent, name string, kind ir.DeviceKind, nets []string, params map[string]ir.ParamValue) error {
	elem, ok := spiceElements[kind]
	if !ok {
		return fmt.Errorf("device kind %q has no emission rule", kind)
	}
	line := fmt.Sprintf("%s%s %s", indent, spicePrefix(elem.prefix, name), strings.Join(nets, " "))
	if v, ok := params[elem.value]; ok {
		line += " " + v.Literal()
	}
	for _, assign := range formatParams(params, elem.value) {
		line += " " + assign
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// EmitBlackBox implements Dialect.
func (Spice) EmitBlackBox(w io.Writer, indent, text string) error {
	_, err := fmt.Fprintf(w, "%s%s\n", indent, text)
	return err
}

// EmitCellFooter implements Dialect.
func (Spice) EmitCellFooter(w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, ".ENDS %s\n", name)
	return err
}

// EmitFooter implements Dialect.
func (Spice) EmitFooter(w io.Writer, _ *ir.Library) error {
	_, err := fmt.Fprintln(w, ".END")
	return err
}

// spicePrefix prepends the element letter unless the name already starts
// with it.
func spicePrefix(prefix, name string) string {
	if len(name) > 0 && strings.EqualFold(name[:1], prefix) {
		return name
	}
	return prefix + name
}
