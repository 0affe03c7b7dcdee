package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/voltlab/netir/internal/ir"
)

// LoadError represents an error that occurred while loading a circuit
// library.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Circuit decoding errors
	ErrCodeBadLibrary   = "E101" // Malformed library block
	ErrCodeBadPort      = "E102" // Malformed port declaration
	ErrCodeBadParam     = "E103" // Malformed parameter value
	ErrCodeBadConn      = "E104" // Malformed connection expression
	ErrCodeUnknownChild = "E105" // Instance references an undefined cell
	ErrCodeBadDevice    = "E106" // Unknown primitive device kind
	ErrCodeBadStructure = "E107" // IR construction rejected the circuit
)

// LoadLibrary loads a circuit library authored in CUE from a directory.
//
// The expected shape is four top-level structs: library {name, top},
// primitive <name>: {device, ports, params}, blackbox <name>: {ports,
// params, templates}, and cell <name>: {signals, ports, instances}.
// Parameter values are tagged single-field structs ({int: 1000},
// {str: "tt"}, {bool: true}, {real: "1.5e-9"}, {ref: "load"}); instance
// connections are signal expressions ("vin", "bus[2]", "bus[1:3]").
func LoadLibrary(dir string) (*ir.Library, error) {
	value, err := buildValue(dir)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(dir)
	libVal := value.LookupPath(cue.ParsePath("library"))
	if libVal.Exists() {
		if v := libVal.LookupPath(cue.ParsePath("name")); v.Exists() {
			if name, err = v.String(); err != nil {
				return nil, &LoadError{Code: ErrCodeBadLibrary, Message: fmt.Sprintf("library.name: %v", err), Pos: v.Pos()}
			}
		}
	}

	b := ir.NewBuilder(name)
	ids := make(map[string]ir.CellID)

	if err := loadPrimitives(b, value, ids); err != nil {
		return nil, err
	}
	if err := loadBlackBoxes(b, value, ids); err != nil {
		return nil, err
	}
	if err := loadCells(b, value, ids); err != nil {
		return nil, err
	}

	if libVal.Exists() {
		if v := libVal.LookupPath(cue.ParsePath("top")); v.Exists() {
			topName, err := v.String()
			if err != nil {
				return nil, &LoadError{Code: ErrCodeBadLibrary, Message: fmt.Sprintf("library.top: %v", err), Pos: v.Pos()}
			}
			top, ok := ids[topName]
			if !ok {
				return nil, &LoadError{Code: ErrCodeBadLibrary, Message: fmt.Sprintf("library.top names undefined cell %q", topName), Pos: v.Pos()}
			}
			if err := b.SetTop(top); err != nil {
				return nil, structureError(err)
			}
		}
	}

	return b.Finish(), nil
}

// buildValue locates the directory's CUE files and builds one unified value
// from them.
func buildValue(dir string) (cue.Value, error) {
	var zero cue.Value

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return zero, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("library directory not found: %s", dir)}
	}
	if err != nil {
		return zero, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing library directory: %v", err)}
	}
	if !info.IsDir() {
		return zero, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return zero, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return zero, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return zero, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return zero, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return zero, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// sortedFields collects a struct value's fields by label so loading is
// deterministic regardless of file order.
func sortedFields(v cue.Value) ([]string, map[string]cue.Value, error) {
	fields := make(map[string]cue.Value)
	if !v.Exists() {
		return nil, fields, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, nil, err
	}
	var labels []string
	for iter.Next() {
		labels = append(labels, iter.Label())
		fields[iter.Label()] = iter.Value()
	}
	sort.Strings(labels)
	return labels, fields, nil
}

func loadPrimitives(b *ir.Builder, value cue.Value, ids map[string]ir.CellID) error {
	labels, fields, err := sortedFields(value.LookupPath(cue.ParsePath("primitive")))
	if err != nil {
		return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating primitives: %v", err)}
	}
	for _, name := range labels {
		v := fields[name]
		deviceVal := v.LookupPath(cue.ParsePath("device"))
		device, err := deviceVal.String()
		if err != nil {
			return &LoadError{Code: ErrCodeBadDevice, Message: fmt.Sprintf("primitive %q: device: %v", name, err), Pos: v.Pos()}
		}
		kind := ir.DeviceKind(device)
		if !ir.IsKnownDeviceKind(kind) {
			return &LoadError{Code: ErrCodeBadDevice, Message: fmt.Sprintf("primitive %q: unknown device kind %q", name, device), Pos: deviceVal.Pos()}
		}
		ports, err := decodePortSpecs(name, v.LookupPath(cue.ParsePath("ports")))
		if err != nil {
			return err
		}
		params, err := decodeParams(name, v.LookupPath(cue.ParsePath("params")))
		if err != nil {
			return err
		}
		id, err := b.AddPrimitive(name, kind, ports, params)
		if err != nil {
			return structureError(err)
		}
		if err := registerDef(ids, name, id, v.Pos()); err != nil {
			return err
		}
	}
	return nil
}

// registerDef records a definition name, rejecting a name already claimed
// by another block (a primitive and a cell may not share a name).
func registerDef(ids map[string]ir.CellID, name string, id ir.CellID, pos token.Pos) error {
	if _, taken := ids[name]; taken {
		return &LoadError{Code: ErrCodeBadStructure, Message: fmt.Sprintf("duplicate definition name %q", name), Pos: pos}
	}
	ids[name] = id
	return nil
}

func loadBlackBoxes(b *ir.Builder, value cue.Value, ids map[string]ir.CellID) error {
	labels, fields, err := sortedFields(value.LookupPath(cue.ParsePath("blackbox")))
	if err != nil {
		return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating blackboxes: %v", err)}
	}
	for _, name := range labels {
		v := fields[name]
		ports, err := decodePortSpecs(name, v.LookupPath(cue.ParsePath("ports")))
		if err != nil {
			return err
		}
		params, err := decodeParams(name, v.LookupPath(cue.ParsePath("params")))
		if err != nil {
			return err
		}
		tmplLabels, tmplFields, err := sortedFields(v.LookupPath(cue.ParsePath("templates")))
		if err != nil {
			return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("blackbox %q: iterating templates: %v", name, err)}
		}
		templates := make(map[string]string, len(tmplLabels))
		for _, dialect := range tmplLabels {
			text, err := tmplFields[dialect].String()
			if err != nil {
				return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("blackbox %q: template %q: %v", name, dialect, err), Pos: tmplFields[dialect].Pos()}
			}
			templates[dialect] = text
		}
		id, err := b.AddBlackBox(name, ports, params, templates)
		if err != nil {
			return structureError(err)
		}
		if err := registerDef(ids, name, id, v.Pos()); err != nil {
			return err
		}
	}
	return nil
}

// loadCells registers all cells, then fills signals and ports, then
// instances. Instantiation needs the child's ports declared, so the phases
// cannot interleave; with all three complete, any cell may instantiate any
// other regardless of declaration order.
func loadCells(b *ir.Builder, value cue.Value, ids map[string]ir.CellID) error {
	labels, fields, err := sortedFields(value.LookupPath(cue.ParsePath("cell")))
	if err != nil {
		return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating cells: %v", err)}
	}

	for _, name := range labels {
		id, err := b.AddCell(name)
		if err != nil {
			return structureError(err)
		}
		if err := registerDef(ids, name, id, fields[name].Pos()); err != nil {
			return err
		}
	}

	sigIDs := make(map[string]map[string]ir.SignalID, len(labels))
	for _, name := range labels {
		v := fields[name]
		cellID := ids[name]
		sigIDs[name] = make(map[string]ir.SignalID)

		sigList, err := listItems(v.LookupPath(cue.ParsePath("signals")))
		if err != nil {
			return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cell %q: signals: %v", name, err), Pos: v.Pos()}
		}
		for _, sv := range sigList {
			sname, width, err := decodeSignal(sv)
			if err != nil {
				return &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("cell %q: %v", name, err), Pos: sv.Pos()}
			}
			if _, taken := sigIDs[name][sname]; taken {
				return &LoadError{Code: ErrCodeBadStructure, Message: fmt.Sprintf("cell %q: duplicate signal name %q", name, sname), Pos: sv.Pos()}
			}
			sid, err := b.AddSignal(cellID, sname, width)
			if err != nil {
				return structureError(err)
			}
			sigIDs[name][sname] = sid
		}

		portList, err := listItems(v.LookupPath(cue.ParsePath("ports")))
		if err != nil {
			return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cell %q: ports: %v", name, err), Pos: v.Pos()}
		}
		for _, pv := range portList {
			sname, err := pv.LookupPath(cue.ParsePath("signal")).String()
			if err != nil {
				return &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("cell %q: port signal: %v", name, err), Pos: pv.Pos()}
			}
			sid, ok := sigIDs[name][sname]
			if !ok {
				return &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("cell %q: port references undeclared signal %q", name, sname), Pos: pv.Pos()}
			}
			dir, err := decodeDirection(pv.LookupPath(cue.ParsePath("dir")))
			if err != nil {
				return &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("cell %q: port %q: %v", name, sname, err), Pos: pv.Pos()}
			}
			if err := b.AddPort(cellID, sid, dir); err != nil {
				return structureError(err)
			}
		}

		paramLabels, paramFields, err := sortedFields(v.LookupPath(cue.ParsePath("params")))
		if err != nil {
			return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cell %q: params: %v", name, err)}
		}
		for _, pname := range paramLabels {
			pval, err := decodeParamValue(paramFields[pname])
			if err != nil {
				return &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("cell %q: param %q: %v", name, pname, err), Pos: paramFields[pname].Pos()}
			}
			if err := b.SetParamDefault(cellID, pname, pval); err != nil {
				return structureError(err)
			}
		}
	}

	for _, name := range labels {
		v := fields[name]
		cellID := ids[name]
		instList, err := listItems(v.LookupPath(cue.ParsePath("instances")))
		if err != nil {
			return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cell %q: instances: %v", name, err), Pos: v.Pos()}
		}
		instNames := make(map[string]bool, len(instList))
		for _, iv := range instList {
			iname, err := iv.LookupPath(cue.ParsePath("name")).String()
			if err != nil {
				return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cell %q: instance name: %v", name, err), Pos: iv.Pos()}
			}
			if instNames[iname] {
				return &LoadError{Code: ErrCodeBadStructure, Message: fmt.Sprintf("cell %q: duplicate instance name %q", name, iname), Pos: iv.Pos()}
			}
			instNames[iname] = true
			childName, err := iv.LookupPath(cue.ParsePath("child")).String()
			if err != nil {
				return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cell %q: instance %q: child: %v", name, iname, err), Pos: iv.Pos()}
			}
			child, ok := ids[childName]
			if !ok {
				return &LoadError{Code: ErrCodeUnknownChild, Message: fmt.Sprintf("cell %q: instance %q references undefined definition %q", name, iname, childName), Pos: iv.Pos()}
			}

			connList, err := listItems(iv.LookupPath(cue.ParsePath("conns")))
			if err != nil {
				return &LoadError{Code: ErrCodeBadConn, Message: fmt.Sprintf("cell %q: instance %q: conns: %v", name, iname, err), Pos: iv.Pos()}
			}
			conns := make([]ir.Slice, 0, len(connList))
			for _, cv := range connList {
				expr, err := cv.String()
				if err != nil {
					return &LoadError{Code: ErrCodeBadConn, Message: fmt.Sprintf("cell %q: instance %q: %v", name, iname, err), Pos: cv.Pos()}
				}
				s, err := parseConn(expr, sigIDs[name])
				if err != nil {
					return &LoadError{Code: ErrCodeBadConn, Message: fmt.Sprintf("cell %q: instance %q: %v", name, iname, err), Pos: cv.Pos()}
				}
				conns = append(conns, s)
			}

			params, err := decodeParams(fmt.Sprintf("%s.%s", name, iname), iv.LookupPath(cue.ParsePath("params")))
			if err != nil {
				return err
			}
			if _, err := b.AddInstance(cellID, iname, child, conns, params); err != nil {
				return structureError(err)
			}
		}
	}
	return nil
}

func listItems(v cue.Value) ([]cue.Value, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, err
	}
	var items []cue.Value
	for iter.Next() {
		items = append(items, iter.Value())
	}
	return items, nil
}

func decodeSignal(v cue.Value) (string, int, error) {
	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return "", 0, fmt.Errorf("signal name: %w", err)
	}
	width := int64(1)
	if wv := v.LookupPath(cue.ParsePath("width")); wv.Exists() {
		if width, err = wv.Int64(); err != nil {
			return "", 0, fmt.Errorf("signal %q: width: %w", name, err)
		}
	}
	return name, int(width), nil
}

func decodePortSpecs(owner string, v cue.Value) ([]ir.PortSpec, error) {
	items, err := listItems(v)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("%q: ports: %v", owner, err), Pos: v.Pos()}
	}
	specs := make([]ir.PortSpec, 0, len(items))
	for _, pv := range items {
		name, width, err := decodeSignal(pv)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("%q: %v", owner, err), Pos: pv.Pos()}
		}
		dir, err := decodeDirection(pv.LookupPath(cue.ParsePath("dir")))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadPort, Message: fmt.Sprintf("%q: port %q: %v", owner, name, err), Pos: pv.Pos()}
		}
		specs = append(specs, ir.PortSpec{Name: name, Width: width, Dir: dir})
	}
	return specs, nil
}

func decodeDirection(v cue.Value) (ir.Direction, error) {
	if !v.Exists() {
		return ir.DirInOut, nil
	}
	s, err := v.String()
	if err != nil {
		return ir.DirInOut, fmt.Errorf("dir: %w", err)
	}
	return ir.ParseDirection(s)
}

func decodeParams(owner string, v cue.Value) (map[string]ir.ParamValue, error) {
	labels, fields, err := sortedFields(v)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("%q: params: %v", owner, err)}
	}
	if len(labels) == 0 {
		return nil, nil
	}
	params := make(map[string]ir.ParamValue, len(labels))
	for _, name := range labels {
		pval, err := decodeParamValue(fields[name])
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("%q: param %q: %v", owner, name, err), Pos: fields[name].Pos()}
		}
		params[name] = pval
	}
	return params, nil
}

// decodeParamValue decodes a tagged parameter value: a single-field struct
// whose label selects the type. Floats are rejected wholesale; physical
// quantities travel as decimal strings under "real".
func decodeParamValue(v cue.Value) (ir.ParamValue, error) {
	labels, fields, err := sortedFields(v)
	if err != nil {
		return nil, fmt.Errorf("expected tagged value struct: %w", err)
	}
	if len(labels) != 1 {
		return nil, fmt.Errorf("expected exactly one of int/str/bool/real/ref, got %d fields", len(labels))
	}
	tag := labels[0]
	tv := fields[tag]
	switch tag {
	case "int":
		n, err := tv.Int64()
		if err != nil {
			return nil, fmt.Errorf("int: %w", err)
		}
		return ir.ParamInt(n), nil
	case "str":
		s, err := tv.String()
		if err != nil {
			return nil, fmt.Errorf("str: %w", err)
		}
		return ir.ParamStr(s), nil
	case "bool":
		b, err := tv.Bool()
		if err != nil {
			return nil, fmt.Errorf("bool: %w", err)
		}
		return ir.ParamBool(b), nil
	case "real":
		s, err := tv.String()
		if err != nil {
			return nil, fmt.Errorf("real: %w", err)
		}
		return ir.NewReal(s)
	case "ref":
		s, err := tv.String()
		if err != nil {
			return nil, fmt.Errorf("ref: %w", err)
		}
		return ir.ParamRef(s), nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", tag)
	}
}

// parseConn parses a connection expression: "sig" for the whole signal,
// "sig[i]" for one bit, "sig[start:end]" for a half-open range.
func parseConn(expr string, sigs map[string]ir.SignalID) (ir.Slice, error) {
	name := expr
	var rangeExpr string
	if i := strings.IndexByte(expr, '['); i >= 0 {
		if !strings.HasSuffix(expr, "]") {
			return ir.Slice{}, fmt.Errorf("malformed connection %q", expr)
		}
		name = expr[:i]
		rangeExpr = expr[i+1 : len(expr)-1]
	}
	sid, ok := sigs[name]
	if !ok {
		return ir.Slice{}, fmt.Errorf("connection references undeclared signal %q", name)
	}
	if rangeExpr == "" {
		if strings.IndexByte(expr, '[') >= 0 {
			return ir.Slice{}, fmt.Errorf("malformed connection %q", expr)
		}
		return ir.WholeSignal(sid), nil
	}
	if i := strings.IndexByte(rangeExpr, ':'); i >= 0 {
		start, err := strconv.Atoi(rangeExpr[:i])
		if err != nil {
			return ir.Slice{}, fmt.Errorf("malformed range in %q", expr)
		}
		end, err := strconv.Atoi(rangeExpr[i+1:])
		if err != nil {
			return ir.Slice{}, fmt.Errorf("malformed range in %q", expr)
		}
		return ir.Bits(sid, start, end), nil
	}
	bit, err := strconv.Atoi(rangeExpr)
	if err != nil {
		return ir.Slice{}, fmt.Errorf("malformed bit index in %q", expr)
	}
	return ir.Bit(sid, bit), nil
}

// structureError wraps an IR construction failure as a load error.
func structureError(err error) *LoadError {
	return &LoadError{Code: ErrCodeBadStructure, Message: err.Error()}
}
