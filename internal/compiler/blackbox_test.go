package compiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltlab/netir/internal/ir"
)

// opampLib builds a cell instantiating a two-template blackbox opamp with
// a default gain parameter.
func opampLib(t *testing.T) *ir.Library {
	t.Helper()
	b := ir.NewBuilder("analog")
	amp, err := b.AddBlackBox("opamp", []ir.PortSpec{
		{Name: "inp", Width: 1, Dir: ir.DirInput},
		{Name: "inn", Width: 1, Dir: ir.DirInput},
		{Name: "out", Width: 1, Dir: ir.DirOutput},
	}, map[string]ir.ParamValue{
		"gain": ir.ParamInt(100),
	}, map[string]string{
		"spectre": "{name} ( {port:inp} {port:inn} {port:out} ) opamp gain={param:gain}",
		"spice":   "X{name} {port:inp} {port:inn} {port:out} OPAMP GAIN={param:gain}",
	})
	require.NoError(t, err)

	top, err := b.AddCell("top")
	require.NoError(t, err)
	vp, err := b.AddSignal(top, "vp", 1)
	require.NoError(t, err)
	vn, err := b.AddSignal(top, "vn", 1)
	require.NoError(t, err)
	vo, err := b.AddSignal(top, "vo", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(top, vp, ir.DirInput))
	require.NoError(t, b.AddPort(top, vn, ir.DirInput))
	require.NoError(t, b.AddPort(top, vo, ir.DirOutput))
	_, err = b.AddInstance(top, "a0", amp,
		[]ir.Slice{ir.WholeSignal(vp), ir.WholeSignal(vn), ir.WholeSignal(vo)},
		map[string]ir.ParamValue{"gain": ir.ParamInt(250)})
	require.NoError(t, err)
	_, err = b.AddInstance(top, "a1", amp,
		[]ir.Slice{ir.WholeSignal(vo), ir.WholeSignal(vn), ir.WholeSignal(vp)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(top))
	return b.Finish()
}

func emitTexts(t *testing.T, lib *ir.Library, cell string) map[string]string {
	t.Helper()
	c, ok := lib.CellNamed(cell)
	require.True(t, ok)
	out := map[string]string{}
	for _, inst := range c.Instances() {
		if inst == nil {
			continue
		}
		if text, ok := inst.EmitText(); ok {
			out[inst.Name()] = text
		}
	}
	return out
}

func TestResolveBlackBoxes(t *testing.T) {
	lib := opampLib(t)
	require.NoError(t, ResolveBlackBoxes(lib, "spectre", nil))

	got := emitTexts(t, lib, "top")
	assert.Equal(t, "a0 ( vp vn vo ) opamp gain=250", got["a0"])
	// a1 binds its ports in a different parent order and falls back to the
	// declared default gain.
	assert.Equal(t, "a1 ( vo vn vp ) opamp gain=100", got["a1"])
}

func TestResolveBlackBoxesPerDialect(t *testing.T) {
	lib := opampLib(t)
	require.NoError(t, ResolveBlackBoxes(lib, "spice", nil))

	got := emitTexts(t, lib, "top")
	assert.Equal(t, "Xa0 vp vn vo OPAMP GAIN=250", got["a0"])
}

func TestResolveBlackBoxesMissingTemplate(t *testing.T) {
	lib := opampLib(t)
	err := ResolveBlackBoxes(lib, "verilog", nil)

	var errs ResolutionErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 2)
	assert.Equal(t, "opamp", errs[0].BlackBox)
	assert.Equal(t, "verilog", errs[0].Dialect)
	assert.Contains(t, errs[0].Message, "no template")

	// A failed resolution marks nothing.
	assert.Empty(t, emitTexts(t, lib, "top"))
}

func TestResolveBlackBoxesUndeclaredPlaceholder(t *testing.T) {
	b := ir.NewBuilder("lib")
	bb, err := b.AddBlackBox("probe", []ir.PortSpec{
		{Name: "tap", Width: 1, Dir: ir.DirInput},
	}, nil, map[string]string{
		"spectre": "{name} ( {port:missing} ) probe",
	})
	require.NoError(t, err)

	top, err := b.AddCell("top")
	require.NoError(t, err)
	s, err := b.AddSignal(top, "s", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(top, s, ir.DirInput))
	_, err = b.AddInstance(top, "p0", bb, []ir.Slice{ir.WholeSignal(s)}, nil)
	require.NoError(t, err)
	lib := b.Finish()

	err = ResolveBlackBoxes(lib, "spectre", nil)
	var errs ResolutionErrors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs[0].Message, `undeclared port "missing"`)
}

func TestResolveBlackBoxesBusPorts(t *testing.T) {
	b := ir.NewBuilder("lib")
	dac, err := b.AddBlackBox("dac", []ir.PortSpec{
		{Name: "d", Width: 4, Dir: ir.DirInput},
		{Name: "out", Width: 1, Dir: ir.DirOutput},
	}, nil, map[string]string{
		"spectre": "{name} ( {port:d} {port:out} ) dac4",
	})
	require.NoError(t, err)

	top, err := b.AddCell("top")
	require.NoError(t, err)
	data, err := b.AddSignal(top, "data", 8)
	require.NoError(t, err)
	vout, err := b.AddSignal(top, "vout", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(top, data, ir.DirInput))
	require.NoError(t, b.AddPort(top, vout, ir.DirOutput))
	_, err = b.AddInstance(top, "d0", dac,
		[]ir.Slice{ir.Bits(data, 4, 8), ir.WholeSignal(vout)}, nil)
	require.NoError(t, err)
	lib := b.Finish()

	angle := func(name string, bit int) string {
		return fmt.Sprintf("%s<%d>", name, bit)
	}
	require.NoError(t, ResolveBlackBoxes(lib, "spectre", angle))

	got := emitTexts(t, lib, "top")
	assert.Equal(t, "d0 ( data<4> data<5> data<6> data<7> vout ) dac4", got["d0"])
}

func TestResolveBlackBoxesAfterFlatten(t *testing.T) {
	// Blackboxes inside an inlined cell survive flattening and then resolve
	// against the composed parent nets.
	b := ir.NewBuilder("lib")
	bb, err := b.AddBlackBox("esd", []ir.PortSpec{
		{Name: "pad", Width: 1, Dir: ir.DirInOut},
	}, nil, map[string]string{
		"spectre": "{name} ( {port:pad} ) esd_clamp",
	})
	require.NoError(t, err)

	inner, err := b.AddCell("inner")
	require.NoError(t, err)
	ip, err := b.AddSignal(inner, "p", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(inner, ip, ir.DirInOut))
	_, err = b.AddInstance(inner, "e0", bb, []ir.Slice{ir.WholeSignal(ip)}, nil)
	require.NoError(t, err)

	top, err := b.AddCell("top")
	require.NoError(t, err)
	pad, err := b.AddSignal(top, "pad_io", 1)
	require.NoError(t, err)
	require.NoError(t, b.AddPort(top, pad, ir.DirInOut))
	_, err = b.AddInstance(top, "u0", inner, []ir.Slice{ir.WholeSignal(pad)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.SetTop(top))
	lib := b.Finish()

	_, err = Flatten(lib, InlineAll)
	require.NoError(t, err)
	require.NoError(t, ResolveBlackBoxes(lib, "spectre", nil))

	got := emitTexts(t, lib, "top")
	assert.Equal(t, "u0_e0 ( pad_io ) esd_clamp", got["u0_e0"])
}
