package netlist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltlab/netir/internal/ir"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func resPorts() []ir.PortSpec {
	return []ir.PortSpec{
		{Name: "p", Width: 1, Dir: ir.DirInOut},
		{Name: "n", Width: 1, Dir: ir.DirInOut},
	}
}

// dividerLib builds the reference two-resistor voltage divider.
func dividerLib(t *testing.T) *ir.Library {
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

// testbenchLib wraps the divider in a testbench cell whose single port is
// the ground.
func testbenchLib(t *testing.T) *ir.Library {
	t.Helper()
	b := ir.NewBuilder("tb_divider")
	res, err := b.AddPrimitive("res", ir.Resistor, resPorts(),
		map[string]ir.ParamValue{"r": ir.ParamInt(1000)})
	require.NoError(t, err)
	vsrc, err := b.AddPrimitive("vsrc", ir.Vsource, resPorts(),
		map[string]ir.ParamValue{"dc": ir.ParamInt(1)})
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
		[]ir.Slice{ir.WholeSignal(vin), ir.WholeSignal(vout)}, nil)
	require.NoError(t, err)
	_, err = b.AddInstance(div, "R2", res,
		[]ir.Slice{ir.WholeSignal(vout), ir.WholeSignal(gnd)},
		map[string]ir.ParamValue{"r": ir.ParamInt(2000)})
	require.NoError(t, err)

	tb, err := b.AddCell("tb")
	require.NoError(t, err)
	vss, err := b.AddSignal(tb, "vss", 1)
	require.NoError(t, err)
	tvin, err := b.AddSignal(tb, "vin", 1)
	require.NoError(t, err)
	tvout, err := b.AddSignal(tb, "vout", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(tb, vss, ir.DirInOut))
	_, err = b.AddInstance(tb, "xdut", div,
		[]ir.Slice{ir.WholeSignal(tvin), ir.WholeSignal(tvout), ir.WholeSignal(vss)}, nil)
	require.NoError(t, err)
	_, err = b.AddInstance(tb, "V0", vsrc,
		[]ir.Slice{ir.WholeSignal(tvin), ir.WholeSignal(vss)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(tb))
	return b.Finish()
}

func export(t *testing.T, lib *ir.Library, d Dialect, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, lib, d, opts))
	return buf.String()
}

func TestExportSpectreDivider(t *testing.T) {
	out := export(t, dividerLib(t), Spectre{}, Options{})

	assert.Contains(t, out, "R1 ( vin vout ) resistor r=1000")
	assert.Contains(t, out, "R2 ( vout gnd ) resistor r=2000")
	golden(t).Assert(t, "divider_spectre", []byte(out))
}

func TestExportSpectreTestbenchInline(t *testing.T) {
	out := export(t, testbenchLib(t), Spectre{}, Options{InlineTop: true})

	// The testbench body sits at file scope with its ground renamed to the
	// global net; the divider keeps its subckt wrapper and its own gnd port.
	assert.Contains(t, out, "xdut ( vin vout 0 ) divider")
	assert.Contains(t, out, "V0 ( vin 0 ) vsource dc=1")
	assert.NotContains(t, out, "subckt tb")
	assert.NotContains(t, out, "vss")
	golden(t).Assert(t, "testbench_spectre", []byte(out))
}

func TestExportSubcktDefinitionsPrecedeUses(t *testing.T) {
	out := export(t, testbenchLib(t), Spectre{}, Options{InlineTop: true})
	def := strings.Index(out, "subckt divider")
	use := strings.Index(out, "xdut (")
	require.GreaterOrEqual(t, def, 0)
	require.GreaterOrEqual(t, use, 0)
	assert.Less(t, def, use)
}

func TestExportSpiceDivider(t *testing.T) {
	out := export(t, dividerLib(t), Spice{}, Options{})

	assert.Contains(t, out, ".SUBCKT divider vin vout gnd")
	assert.Contains(t, out, "R1 vin vout 1000")
	assert.Contains(t, out, "R2 vout gnd 2000")
	assert.True(t, strings.HasSuffix(out, ".END\n"))
	golden(t).Assert(t, "divider_spice", []byte(out))
}

func TestExportSpectreBusPorts(t *testing.T) {
	b := ir.NewBuilder("buses")
	res, err := b.AddPrimitive("rbus", ir.Resistor, []ir.PortSpec{
		{Name: "p", Width: 2, Dir: ir.DirInOut},
		{Name: "n", Width: 2, Dir: ir.DirInOut},
	}, nil)
	require.NoError(t, err)

	c, err := b.AddCell("pair")
	require.NoError(t, err)
	d, err := b.AddSignal(c, "d", 2)
	require.NoError(t, err)
	q, err := b.AddSignal(c, "q", 4)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(c, d, ir.DirInOut))
	_, err = b.AddInstance(c, "r0", res,
		[]ir.Slice{ir.WholeSignal(d), ir.Bits(q, 1, 3)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(c))
	lib := b.Finish()

	out := export(t, lib, Spectre{}, Options{})
	assert.Contains(t, out, `subckt pair ( d\[0\] d\[1\] )`)
	assert.Contains(t, out, `r0 ( d\[0\] d\[1\] q\[1\] q\[2\] ) resistor`)
}

func TestExportSpiceMosfet(t *testing.T) {
	b := ir.NewBuilder("mos")
	nmos, err := b.AddPrimitive("nmos", ir.Mosfet, []ir.PortSpec{
		{Name: "d", Width: 1, Dir: ir.DirInOut},
		{Name: "g", Width: 1, Dir: ir.DirInput},
		{Name: "s", Width: 1, Dir: ir.DirInOut},
		{Name: "b", Width: 1, Dir: ir.DirInOut},
	}, map[string]ir.ParamValue{
		"model": ir.ParamStr("nmos_lv"),
		"w":     ir.ParamInt(4),
		"l":     ir.ParamInt(1),
	})
	require.NoError(t, err)

	c, err := b.AddCell("inv")
	require.NoError(t, err)
	var sigs []ir.Slice
	for _, n := range []string{"out", "in", "vss", "bulk"} {
		s, err := b.AddSignal(c, n, 1)
		require.NoError(t, err)
		require.NoError(t, b.AddPort(c, s, ir.DirInOut))
		sigs = append(sigs, ir.WholeSignal(s))
	}
	_, err = b.AddInstance(c, "M0", nmos, sigs, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(c))
	lib := b.Finish()

	out := export(t, lib, Spice{}, Options{})
	// The model is the positional element value; the rest are sorted
	// name=value assignments.
	assert.Contains(t, out, "M0 out in vss bulk nmos_lv l=1 w=4")

	// Spectre has no generic mosfet master.
	var buf bytes.Buffer
	err = Export(&buf, lib, Spectre{}, Options{})
	var xerr *ExportError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "spectre", xerr.Dialect)
	assert.Contains(t, xerr.Message, "no emission rule")
}

func TestExportBlackBoxText(t *testing.T) {
	b := ir.NewBuilder("bb")
	amp, err := b.AddBlackBox("opamp", []ir.PortSpec{
		{Name: "inp", Width: 1, Dir: ir.DirInput},
		{Name: "out", Width: 1, Dir: ir.DirOutput},
	}, nil, map[string]string{"spectre": "unused"})
	require.NoError(t, err)

	c, err := b.AddCell("top")
	require.NoError(t, err)
	in, err := b.AddSignal(c, "in", 1)
	require.NoError(t, err)
	out, err := b.AddSignal(c, "out", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(c, in, ir.DirInput))
	require.NoError(t, b.AddPort(c, out, ir.DirOutput))
	inst, err := b.AddInstance(c, "a0", amp,
		[]ir.Slice{ir.WholeSignal(in), ir.WholeSignal(out)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(c))
	lib := b.Finish()

	// Unresolved blackboxes are a fatal export error, never skipped.
	var buf bytes.Buffer
	err = Export(&buf, lib, Spectre{}, Options{})
	var xerr *ExportError
	require.ErrorAs(t, err, &xerr)
	assert.Contains(t, xerr.Message, "unresolved")

	top, _ := lib.CellNamed("top")
	require.NoError(t, lib.SetInstanceEmitText(top.ID(), inst, "a0 ( in out ) opamp gain=100"))
	rendered := export(t, lib, Spectre{}, Options{})
	assert.Contains(t, rendered, "  a0 ( in out ) opamp gain=100\n")
}

// flatOnly is a Spice variant without subcircuit support.
type flatOnly struct{ Spice }

func (flatOnly) SupportsHierarchy() bool { return false }

func TestExportFlatOnlyDialect(t *testing.T) {
	out := export(t, dividerLib(t), flatOnly{}, Options{})
	assert.NotContains(t, out, ".SUBCKT")
	assert.Contains(t, out, "\nR1 vin vout 1000\n")
	assert.True(t, strings.HasSuffix(out, ".END\n"))
}

func TestExportFlatOnlyRejectsHierarchy(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, testbenchLib(t), flatOnly{}, Options{})
	var xerr *ExportError
	require.ErrorAs(t, err, &xerr)
	assert.Contains(t, xerr.Message, "requires a flattened library")
}

func TestIdentRulesLegalize(t *testing.T) {
	rules := Spectre{}.IdentRules()
	assert.Equal(t, "amp_x_", rules.LegalizeChars("amp<x>"))
	assert.Equal(t, 0, rules.MaxLen)
	assert.Equal(t, 128, Spice{}.IdentRules().MaxLen)
}
