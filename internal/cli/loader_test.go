package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltlab/netir/internal/ir"
)

// dividerCUE is the two-resistor voltage divider used throughout the CLI
// tests.
const dividerCUE = `
package circuits

library: {
	name: "divider"
	top:  "divider"
}

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
	params: r: {int: 1000}
}

cell: divider: {
	signals: [{name: "vin"}, {name: "vout"}, {name: "gnd"}]
	ports: [
		{signal: "vin", dir: "input"},
		{signal: "vout", dir: "output"},
		{signal: "gnd"},
	]
	instances: [
		{name: "R1", child: "res", conns: ["vin", "vout"]},
		{name: "R2", child: "res", conns: ["vout", "gnd"], params: r: {int: 2000}},
	]
}
`

// writeLib writes one CUE source file into a fresh temp directory and
// returns the directory path.
func writeLib(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.cue"), []byte(src), 0644))
	return dir
}

func TestLoadLibraryDivider(t *testing.T) {
	lib, err := LoadLibrary(writeLib(t, dividerCUE))
	require.NoError(t, err)

	assert.Equal(t, "divider", lib.Name())

	top, ok := lib.Top()
	require.True(t, ok)
	div := lib.Cell(top)
	require.NotNil(t, div)
	assert.Equal(t, "divider", div.Name())
	assert.Len(t, div.Ports(), 3)
	assert.Len(t, div.Signals(), 3)

	resDef, ok := lib.DefNamed("res")
	require.True(t, ok)
	res, ok := resDef.(*ir.Primitive)
	require.True(t, ok)
	assert.Equal(t, ir.Resistor, res.Kind())
	assert.Equal(t, ir.ParamInt(1000), res.Params()["r"])

	require.Len(t, div.Instances(), 2)
	r2 := div.Instances()[1]
	assert.Equal(t, "R2", r2.Name())
	assert.Equal(t, res.ID(), r2.Child())
	assert.Equal(t, ir.ParamInt(2000), r2.Params()["r"])

	vout, ok := div.SignalNamed("vout")
	require.True(t, ok)
	assert.Equal(t, ir.WholeSignal(vout), r2.Conns()[0])
}

func TestLoadLibraryPortDirections(t *testing.T) {
	lib, err := LoadLibrary(writeLib(t, dividerCUE))
	require.NoError(t, err)

	div, ok := lib.CellNamed("divider")
	require.True(t, ok)
	specs := div.PortSpecs()
	require.Len(t, specs, 3)
	assert.Equal(t, ir.DirInput, specs[0].Dir)
	assert.Equal(t, ir.DirOutput, specs[1].Dir)
	assert.Equal(t, ir.DirInOut, specs[2].Dir)
}

func TestLoadLibraryTaggedParams(t *testing.T) {
	src := `
package circuits

primitive: cap: {
	device: "capacitor"
	ports: [{name: "p"}, {name: "n"}]
	params: {
		c:      {real: "1.5e-12"}
		model:  {str: "mim"}
		ideal:  {bool: true}
		mult:   {int: 4}
		scale:  {ref: "area"}
	}
}
`
	lib, err := LoadLibrary(writeLib(t, src))
	require.NoError(t, err)

	def, ok := lib.DefNamed("cap")
	require.True(t, ok)
	params := def.(*ir.Primitive).Params()
	assert.Equal(t, ir.ParamReal("1.5e-12"), params["c"])
	assert.Equal(t, ir.ParamStr("mim"), params["model"])
	assert.Equal(t, ir.ParamBool(true), params["ideal"])
	assert.Equal(t, ir.ParamInt(4), params["mult"])
	assert.Equal(t, ir.ParamRef("area"), params["scale"])
}

func TestLoadLibraryBusConnections(t *testing.T) {
	src := `
package circuits

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
}

cell: taps: {
	signals: [{name: "bus", width: 4}, {name: "out"}]
	ports: [{signal: "bus"}, {signal: "out"}]
	instances: [
		{name: "r0", child: "res", conns: ["bus[0]", "out"]},
		{name: "r1", child: "res", conns: ["bus[2]", "bus[3]"]},
	]
}
`
	lib, err := LoadLibrary(writeLib(t, src))
	require.NoError(t, err)

	taps, ok := lib.CellNamed("taps")
	require.True(t, ok)
	bus, ok := taps.SignalNamed("bus")
	require.True(t, ok)

	r0 := taps.Instances()[0]
	assert.Equal(t, ir.Bit(bus, 0), r0.Conns()[0])
	r1 := taps.Instances()[1]
	assert.Equal(t, ir.Bit(bus, 2), r1.Conns()[0])
	assert.Equal(t, ir.Bit(bus, 3), r1.Conns()[1])
}

func TestLoadLibraryRangeConnection(t *testing.T) {
	src := `
package circuits

primitive: dac: {
	device: "vsource"
	ports: [{name: "d", width: 2}]
}

cell: wrap: {
	signals: [{name: "bus", width: 4}]
	ports: [{signal: "bus"}]
	instances: [
		{name: "d0", child: "dac", conns: ["bus[1:3]"]},
	]
}
`
	lib, err := LoadLibrary(writeLib(t, src))
	require.NoError(t, err)

	wrap, ok := lib.CellNamed("wrap")
	require.True(t, ok)
	bus, ok := wrap.SignalNamed("bus")
	require.True(t, ok)
	assert.Equal(t, ir.Bits(bus, 1, 3), wrap.Instances()[0].Conns()[0])
}

func TestLoadLibraryBlackBox(t *testing.T) {
	src := `
package circuits

blackbox: opamp: {
	ports: [{name: "inp", dir: "input"}, {name: "inn", dir: "input"}, {name: "out", dir: "output"}]
	params: gain: {int: 100}
	templates: {
		spectre: "{name} ( {port:inp} {port:inn} {port:out} ) opamp gain={param:gain}"
	}
}
`
	lib, err := LoadLibrary(writeLib(t, src))
	require.NoError(t, err)

	def, ok := lib.DefNamed("opamp")
	require.True(t, ok)
	box, ok := def.(*ir.BlackBox)
	require.True(t, ok)
	assert.Len(t, box.PortSpecs(), 3)
	tmpl, ok := box.Template("spectre")
	require.True(t, ok)
	assert.Contains(t, tmpl, "{param:gain}")
	_, ok = box.Template("spice")
	assert.False(t, ok)
}

func TestLoadLibraryUnknownChild(t *testing.T) {
	src := `
package circuits

cell: top: {
	signals: [{name: "a"}]
	instances: [{name: "x0", child: "ghost", conns: ["a"]}]
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeUnknownChild, loadErr.Code)
	assert.Contains(t, loadErr.Message, `"ghost"`)
}

func TestLoadLibraryUnknownDeviceKind(t *testing.T) {
	src := `
package circuits

primitive: x: {
	device: "memristor"
	ports: [{name: "p"}, {name: "n"}]
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadDevice, loadErr.Code)
}

func TestLoadLibraryUndeclaredSignal(t *testing.T) {
	src := `
package circuits

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
}

cell: top: {
	signals: [{name: "a"}]
	instances: [{name: "r0", child: "res", conns: ["a", "phantom"]}]
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadConn, loadErr.Code)
	assert.Contains(t, loadErr.Message, `"phantom"`)
}

func TestLoadLibraryMalformedParam(t *testing.T) {
	src := `
package circuits

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
	params: r: {watts: 5}
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadParam, loadErr.Code)
}

func TestLoadLibraryDuplicateDefinitionName(t *testing.T) {
	// A primitive and a cell sharing a name would make instance child
	// references and cache fingerprints ambiguous.
	src := `
package circuits

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
}

cell: res: {
	signals: [{name: "a"}]
	ports: [{signal: "a"}]
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadStructure, loadErr.Code)
	assert.Contains(t, loadErr.Message, `duplicate definition name "res"`)
}

func TestLoadLibraryDuplicateSignalName(t *testing.T) {
	src := `
package circuits

cell: top: {
	signals: [{name: "x"}, {name: "x", width: 2}]
	ports: [{signal: "x"}]
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadStructure, loadErr.Code)
	assert.Contains(t, loadErr.Message, `duplicate signal name "x"`)
}

func TestLoadLibraryDuplicateInstanceName(t *testing.T) {
	src := `
package circuits

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
}

cell: top: {
	signals: [{name: "a"}, {name: "b"}]
	ports: [{signal: "a"}, {signal: "b"}]
	instances: [
		{name: "r0", child: "res", conns: ["a", "b"]},
		{name: "r0", child: "res", conns: ["b", "a"]},
	]
}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadStructure, loadErr.Code)
	assert.Contains(t, loadErr.Message, `duplicate instance name "r0"`)
}

func TestLoadLibraryBadTop(t *testing.T) {
	src := `
package circuits

library: top: "nowhere"

cell: a: {}
`
	_, err := LoadLibrary(writeLib(t, src))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadLibrary, loadErr.Code)
}

func TestLoadLibraryMissingDirectory(t *testing.T) {
	_, err := LoadLibrary("/nonexistent/directory/path")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadLibraryEmptyDirectory(t *testing.T) {
	_, err := LoadLibrary(t.TempDir())
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNoFiles, loadErr.Code)
}

func TestLoadLibraryOrderIndependent(t *testing.T) {
	// The same circuit declared in the opposite order fingerprints
	// identically: loading sorts definitions by name.
	reversed := `
package circuits

library: {
	name: "divider"
	top:  "divider"
}

cell: divider: {
	signals: [{name: "vin"}, {name: "vout"}, {name: "gnd"}]
	ports: [
		{signal: "vin", dir: "input"},
		{signal: "vout", dir: "output"},
		{signal: "gnd"},
	]
	instances: [
		{name: "R1", child: "res", conns: ["vin", "vout"]},
		{name: "R2", child: "res", conns: ["vout", "gnd"], params: r: {int: 2000}},
	]
}

primitive: res: {
	device: "resistor"
	ports: [{name: "p"}, {name: "n"}]
	params: r: {int: 1000}
}
`
	a, err := LoadLibrary(writeLib(t, dividerCUE))
	require.NoError(t, err)
	b, err := LoadLibrary(writeLib(t, reversed))
	require.NoError(t, err)

	fpA, err := ir.Fingerprint(a, nil)
	require.NoError(t, err)
	fpB, err := ir.Fingerprint(b, nil)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package circuits\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.cue"), []byte("package circuits\n"), 0644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
