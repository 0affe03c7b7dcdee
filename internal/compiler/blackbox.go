package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/voltlab/netir/internal/ir"
)

// ResolutionError reports a blackbox instance that cannot be rendered for
// the active dialect: a missing template or an unbound placeholder.
type ResolutionError struct {
	Cell     ir.CellID
	Instance ir.InstanceID
	BlackBox string
	Dialect  string
	Message  string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve blackbox %q for dialect %q: %s (cell=%d instance=%d)",
		e.BlackBox, e.Dialect, e.Message, e.Cell, e.Instance)
}

// ResolutionErrors collects every resolution failure in a library, in
// deterministic id order.
type ResolutionErrors []*ResolutionError

// Error implements the error interface.
func (es ResolutionErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// BitFormatter renders one bit of a bus net as identifier text, e.g.
// "data[3]". Dialects supply their own; nil falls back to "name[i]".
type BitFormatter func(name string, bit int) string

func defaultBitFormat(name string, bit int) string {
	return fmt.Sprintf("%s[%d]", name, bit)
}

// placeholder matches {name}, {port:NAME}, and {param:NAME} in blackbox
// templates.
var placeholder = regexp.MustCompile(`\{(name|port:[A-Za-z_][A-Za-z0-9_]*|param:[A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveBlackBoxes renders the dialect-tagged body template of every
// blackbox instance and marks the instance for literal emission. The
// declared port order is the binding contract: conns[k] is spliced wherever
// the template names the k-th declared port. Connection order against the
// parent's own signals is free; position is exactly what is emitted.
//
// Errors are collected per library, not fail-fast: the returned
// ResolutionErrors names every instance whose blackbox has no template for
// the active dialect or whose template references an unknown port or
// parameter.
func ResolveBlackBoxes(lib *ir.Library, dialect string, format BitFormatter) error {
	if format == nil {
		format = defaultBitFormat
	}

	var errs ResolutionErrors
	for _, d := range lib.Defs() {
		c, ok := d.(*ir.Cell)
		if !ok {
			continue
		}
		for _, inst := range c.Instances() {
			if inst == nil {
				continue
			}
			bb, ok := lib.ChildOf(inst).(*ir.BlackBox)
			if !ok {
				continue
			}
			text, rerr := renderBlackBox(lib, c, inst, bb, dialect, format)
			if rerr != nil {
				errs = append(errs, rerr)
				continue
			}
			if err := lib.SetInstanceEmitText(c.ID(), inst.ID(), text); err != nil {
				return err
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func renderBlackBox(lib *ir.Library, c *ir.Cell, inst *ir.Instance, bb *ir.BlackBox, dialect string, format BitFormatter) (string, *ResolutionError) {
	fail := func(msg string) *ResolutionError {
		return &ResolutionError{
			Cell: c.ID(), Instance: inst.ID(),
			BlackBox: bb.Name(), Dialect: dialect, Message: msg,
		}
	}

	template, ok := bb.Template(dialect)
	if !ok {
		return "", fail("no template registered")
	}

	ports := bb.PortSpecs()
	portIndex := make(map[string]int, len(ports))
	for i, p := range ports {
		portIndex[p.Name] = i
	}
	params := resolveParams(bb.Params(), inst.Params())

	var badRef *ResolutionError
	rendered := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		inner := m[1 : len(m)-1]
		switch {
		case inner == "name":
			return inst.Name()
		case strings.HasPrefix(inner, "port:"):
			pname := inner[len("port:"):]
			k, ok := portIndex[pname]
			if !ok {
				if badRef == nil {
					badRef = fail(fmt.Sprintf("template references undeclared port %q", pname))
				}
				return m
			}
			return netText(c, inst.Conns()[k], format)
		default: // param:
			pname := inner[len("param:"):]
			v, ok := params[pname]
			if !ok {
				if badRef == nil {
					badRef = fail(fmt.Sprintf("template references undeclared parameter %q", pname))
				}
				return m
			}
			return v.Literal()
		}
	})
	if badRef != nil {
		return "", badRef
	}
	return rendered, nil
}

// netText renders a parent slice as net text: a bare name for a whole
// single-bit signal, otherwise space-joined bus bits.
func netText(c *ir.Cell, s ir.Slice, format BitFormatter) string {
	sig := c.Signal(s.Signal)
	if sig == nil {
		return "?"
	}
	start, end := 0, sig.Width
	if s.Range != nil {
		start, end = s.Range.Start, s.Range.End
	}
	if s.Range == nil && sig.Width == 1 {
		return sig.Name
	}
	bits := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		bits = append(bits, format(sig.Name, i))
	}
	return strings.Join(bits, " ")
}
