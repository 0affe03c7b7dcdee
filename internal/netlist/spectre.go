package netlist

import (
	"fmt"
	"io"
	"strings"

	"github.com/voltlab/netir/internal/ir"
)

// Spectre emits Cadence Spectre netlists: subckt/ends definitions, escaped
// bus bits, and a testbench inline mode whose ground becomes the global
// net "0".
type Spectre struct{}

// Name implements Dialect.
func (Spectre) Name() string { return "spectre" }

// SupportsHierarchy implements Dialect.
func (Spectre) SupportsHierarchy() bool { return true }

// IdentRules implements Dialect. Spectre identifiers are ASCII word
// characters; escaped bracket bits are produced by the netlister, not
// carried in names.
func (Spectre) IdentRules() ir.IdentRules {
	return ir.IdentRules{Legal: asciiWord}
}

func asciiWord(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z')
}

// FormatBit implements Dialect. Spectre bus bits use escaped brackets.
func (Spectre) FormatBit(name string, bit int) string {
	return fmt.Sprintf(`%s\[%d\]`, name, bit)
}

// EmitHeader implements Dialect.
func (Spectre) EmitHeader(w io.Writer, lib *ir.Library) error {
	_, err := fmt.Fprintf(w,
		"// %s\n\n// This is a generated file.\n// Be careful when editing manually: this file may be overwritten.\n\nsimulator lang=spectre\n\n",
		lib.Name())
	return err
}

// EmitCellHeader implements Dialect.
func (Spectre) EmitCellHeader(w io.Writer, name string, ports []string) error {
	_, err := fmt.Fprintf(w, "subckt %s ( %s )\n\n", name, strings.Join(ports, " "))
	return err
}

// EmitInstance implements Dialect.
func (Spectre) EmitInstance(w io.Writer, indent, name string, nets []string, child string) error {
	_, err := fmt.Fprintf(w, "%s%s ( %s ) %s\n", indent, name, strings.Join(nets, " "), child)
	return err
}

// spectreMasters maps device kinds to Spectre built-in master names. Kinds
// absent here need a process model card and cannot be emitted generically.
var spectreMasters = map[ir.DeviceKind]string{
	ir.Resistor:  "resistor",
	ir.Capacitor: "capacitor",
	ir.Inductor:  "inductor",
	ir.Vsource:   "vsource",
	ir.Isource:   "isource",
}

// EmitPrimitive implements Dialect.
func (Spectre) EmitPrimitive(w io.Writer, indent, name string, kind ir.DeviceKind, nets []string, params map[string]ir.ParamValue) error {
	master, ok := spectreMasters[kind]
	if !ok {
		return fmt.Errorf("device kind %q has no emission rule (requires a model card)", kind)
	}
	line := fmt.Sprintf("%s%s ( %s ) %s", indent, name, strings.Join(nets, " "), master)
	for _, assign := range formatParams(params) {
		line += " " + assign
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// EmitBlackBox implements Dialect.
func (Spectre) EmitBlackBox(w io.Writer, indent, text string) error {
	_, err := fmt.Fprintf(w, "%s%s\n", indent, text)
	return err
}

// EmitCellFooter implements Dialect.
func (Spectre) EmitCellFooter(w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, "\nends %s\n\n", name)
	return err
}

// EmitFooter implements Dialect.
func (Spectre) EmitFooter(io.Writer, *ir.Library) error { return nil }
