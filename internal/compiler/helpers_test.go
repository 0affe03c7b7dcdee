package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voltlab/netir/internal/ir"
)

func resPorts() []ir.PortSpec {
	return []ir.PortSpec{
		{Name: "p", Width: 1, Dir: ir.DirInOut},
		{Name: "n", Width: 1, Dir: ir.DirInOut},
	}
}

// divider builds the reference two-resistor voltage divider.
func divider(t *testing.T) *ir.Library {
	t.Helper()
	b := ir.NewBuilder("vdivider")
	res, err := b.AddPrimitive("res", ir.Resistor, resPorts(),
		map[string]ir.ParamValue{"r": ir.ParamInt(1000)})
	require.NoError(t, err)

	div, err := b.AddCell("divider")
	require.NoError(t, err)
	vin, err := b.AddSignal(div, "vin", 1)
	require.NoError(t, err)
	vout, err := b.AddSignal(div, "vout", 1)
	require.NoError(t, err)
	gnd, err := b.AddSignal(div, "gnd", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(div, vin, ir.DirInput))
	require.NoError(t, b.AddPort(div, vout, ir.DirOutput))
	require.NoError(t, b.AddPort(div, gnd, ir.DirInOut))
	_, err = b.AddInstance(div, "R1", res,
		[]ir.Slice{ir.WholeSignal(vin), ir.WholeSignal(vout)},
		map[string]ir.ParamValue{"r": ir.ParamInt(1000)})
	require.NoError(t, err)
	_, err = b.AddInstance(div, "R2", res,
		[]ir.Slice{ir.WholeSignal(vout), ir.WholeSignal(gnd)},
		map[string]ir.ParamValue{"r": ir.ParamInt(2000)})
	require.NoError(t, err)
	require.NoError(t, b.SetTop(div))
	return b.Finish()
}

// threeLevel builds a 3-level hierarchy, each level instantiating the next
// twice: top -> 2x mid -> 2x leaf -> 2x resistor. Fully flattened, the top
// holds 8 resistors.
func threeLevel(t *testing.T) *ir.Library {
	t.Helper()
	b := ir.NewBuilder("tree")
	res, err := b.AddPrimitive("res", ir.Resistor, resPorts(),
		map[string]ir.ParamValue{"r": ir.ParamInt(100)})
	require.NoError(t, err)

	leaf, err := b.AddCell("leaf")
	require.NoError(t, err)
	la, err := b.AddSignal(leaf, "a", 1)
	require.NoError(t, err)
	lm, err := b.AddSignal(leaf, "m", 1)
	require.NoError(t, err)
	lb, err := b.AddSignal(leaf, "b", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(leaf, la, ir.DirInOut))
	require.NoError(t, b.AddPort(leaf, lb, ir.DirInOut))
	_, err = b.AddInstance(leaf, "r0", res,
		[]ir.Slice{ir.WholeSignal(la), ir.WholeSignal(lm)}, nil)
	require.NoError(t, err)
	_, err = b.AddInstance(leaf, "r1", res,
		[]ir.Slice{ir.WholeSignal(lm), ir.WholeSignal(lb)}, nil)
	require.NoError(t, err)

	mid, err := b.AddCell("mid")
	require.NoError(t, err)
	ma, err := b.AddSignal(mid, "a", 1)
	require.NoError(t, err)
	mx, err := b.AddSignal(mid, "x", 1)
	require.NoError(t, err)
	mb, err := b.AddSignal(mid, "b", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(mid, ma, ir.DirInOut))
	require.NoError(t, b.AddPort(mid, mb, ir.DirInOut))
	_, err = b.AddInstance(mid, "u0", leaf,
		[]ir.Slice{ir.WholeSignal(ma), ir.WholeSignal(mx)}, nil)
	require.NoError(t, err)
	_, err = b.AddInstance(mid, "u1", leaf,
		[]ir.Slice{ir.WholeSignal(mx), ir.WholeSignal(mb)}, nil)
	require.NoError(t, err)

	top, err := b.AddCell("top")
	require.NoError(t, err)
	ta, err := b.AddSignal(top, "a", 1)
	require.NoError(t, err)
	tx, err := b.AddSignal(top, "x", 1)
	require.NoError(t, err)
	tb, err := b.AddSignal(top, "b", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(top, ta, ir.DirInOut))
	require.NoError(t, b.AddPort(top, tb, ir.DirInOut))
	_, err = b.AddInstance(top, "m0", mid,
		[]ir.Slice{ir.WholeSignal(ta), ir.WholeSignal(tx)}, nil)
	require.NoError(t, err)
	_, err = b.AddInstance(top, "m1", mid,
		[]ir.Slice{ir.WholeSignal(tx), ir.WholeSignal(tb)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(top))
	return b.Finish()
}

// countPrimitiveInstances returns the number of live instances of primitive
// definitions in cell c.
func countPrimitiveInstances(lib *ir.Library, c *ir.Cell) int {
	n := 0
	for _, inst := range c.Instances() {
		if inst == nil {
			continue
		}
		if _, ok := lib.ChildOf(inst).(*ir.Primitive); ok {
			n++
		}
	}
	return n
}
