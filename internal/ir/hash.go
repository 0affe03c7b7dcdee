package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Domain prefixes for content-addressed identity. The version suffix enables
// future algorithm migration.
const (
	DomainCell        = "netir/cell/v1"
	DomainFingerprint = "netir/fingerprint/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CellDigest computes a structural digest of a definition: port widths and
// directions, device kinds, connectivity topology, and parameter values.
// Names are excluded, so two cells that differ only in naming digest
// identically. Child references hash recursively, so a digest pins the
// entire subtree's shape.
//
// Internal ids participate in the digest as topology coordinates, which
// means structurally identical cells built with different insertion orders
// may digest differently. The flattener treats digest equality only as
// "candidate equal" and confirms with StructurallyEqual, so a missed match
// costs deduplication, never correctness.
func CellDigest(lib *Library, id CellID) (string, error) {
	memo := make(map[CellID]string)
	return cellDigest(lib, id, memo)
}

func cellDigest(lib *Library, id CellID, memo map[CellID]string) (string, error) {
	if d, ok := memo[id]; ok {
		return d, nil
	}
	shape, err := defShape(lib, id, memo)
	if err != nil {
		return "", err
	}
	canonical, err := MarshalCanonical(shape)
	if err != nil {
		return "", fmt.Errorf("CellDigest: failed to marshal definition %d: %w", id, err)
	}
	digest := hashWithDomain(DomainCell, canonical)
	memo[id] = digest
	return digest, nil
}

func defShape(lib *Library, id CellID, memo map[CellID]string) (map[string]any, error) {
	switch d := lib.Def(id).(type) {
	case *Primitive:
		params, err := paramsCanonical(d.params)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"kind":   "primitive",
			"device": string(d.kind),
			"ports":  portShapes(d.ports),
			"params": params,
		}, nil
	case *BlackBox:
		params, err := paramsCanonical(d.params)
		if err != nil {
			return nil, err
		}
		templates := make(map[string]any, len(d.templates))
		for dialect, text := range d.templates {
			templates[dialect] = text
		}
		return map[string]any{
			"kind":      "blackbox",
			"ports":     portShapes(d.ports),
			"params":    params,
			"templates": templates,
		}, nil
	case *Cell:
		params, err := paramsCanonical(d.params)
		if err != nil {
			return nil, err
		}
		ports := make([]any, len(d.ports))
		for i, p := range d.ports {
			ports[i] = map[string]any{
				"signal": int64(p.Signal),
				"dir":    p.Dir.String(),
			}
		}
		signals := make([]any, 0, len(d.signals))
		for sid, sig := range d.signals {
			if sig == nil {
				continue
			}
			signals = append(signals, map[string]any{
				"id":    int64(sid),
				"width": int64(sig.Width),
			})
		}
		instances := make([]any, 0, len(d.instances))
		for _, inst := range d.instances {
			if inst == nil {
				continue
			}
			childDigest, err := cellDigest(lib, inst.child, memo)
			if err != nil {
				return nil, err
			}
			instParams, err := paramsCanonical(inst.params)
			if err != nil {
				return nil, err
			}
			instances = append(instances, map[string]any{
				"child":  childDigest,
				"conns":  connShapes(d, inst.conns),
				"params": instParams,
			})
		}
		return map[string]any{
			"kind":      "cell",
			"ports":     ports,
			"signals":   signals,
			"instances": instances,
			"params":    params,
		}, nil
	default:
		return nil, fmt.Errorf("unknown definition id %d", id)
	}
}

func portShapes(ports []PortSpec) []any {
	out := make([]any, len(ports))
	for i, p := range ports {
		out[i] = map[string]any{
			"width": int64(p.Width),
			"dir":   p.Dir.String(),
		}
	}
	return out
}

// connShapes normalizes connection slices: a whole-signal slice and an
// explicit full-range slice are the same shape.
func connShapes(c *Cell, conns []Slice) []any {
	out := make([]any, len(conns))
	for i, s := range conns {
		start, end := 0, 0
		if sig := c.Signal(s.Signal); sig != nil {
			end = sig.Width
		}
		if s.Range != nil {
			start, end = s.Range.Start, s.Range.End
		}
		out[i] = map[string]any{
			"signal": int64(s.Signal),
			"start":  int64(start),
			"end":    int64(end),
		}
	}
	return out
}

// Fingerprint computes the build-cache key for a finalized library plus the
// backend configuration that affects output. Unlike CellDigest it includes
// names and is insensitive to construction call order: definitions, signals,
// and instances are keyed by name, so two structurally identical libraries
// built independently fingerprint identically.
//
// Name-keying requires unique names: a duplicate definition name, or a
// duplicate signal or instance name within one cell, is an error. Libraries
// carrying pre-uniquification collisions must be uniquified first.
//
// config must contain only canonical-JSON-compatible values (strings, ints,
// bools, nested maps and slices; no floats).
func Fingerprint(lib *Library, config map[string]any) (string, error) {
	defs := make(map[string]any)
	for _, d := range lib.defs {
		if d == nil {
			continue
		}
		if _, taken := defs[d.Name()]; taken {
			return "", fmt.Errorf("Fingerprint: duplicate definition name %q: uniquify before fingerprinting", d.Name())
		}
		shape, err := namedDefShape(lib, d)
		if err != nil {
			return "", fmt.Errorf("Fingerprint: definition %q: %w", d.Name(), err)
		}
		defs[d.Name()] = shape
	}
	topName := ""
	if top, ok := lib.Top(); ok {
		topName = lib.Def(top).Name()
	}
	if config == nil {
		config = map[string]any{}
	}
	payload := map[string]any{
		"library": map[string]any{
			"name": lib.name,
			"top":  topName,
			"defs": defs,
		},
		"config": config,
	}
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFingerprint, canonical), nil
}

func namedDefShape(lib *Library, d Def) (map[string]any, error) {
	switch v := d.(type) {
	case *Primitive:
		params, err := paramsCanonical(v.params)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"kind":   "primitive",
			"device": string(v.kind),
			"ports":  namedPortShapes(v.ports),
			"params": params,
		}, nil
	case *BlackBox:
		params, err := paramsCanonical(v.params)
		if err != nil {
			return nil, err
		}
		templates := make(map[string]any, len(v.templates))
		for dialect, text := range v.templates {
			templates[dialect] = text
		}
		return map[string]any{
			"kind":      "blackbox",
			"ports":     namedPortShapes(v.ports),
			"params":    params,
			"templates": templates,
		}, nil
	case *Cell:
		params, err := paramsCanonical(v.params)
		if err != nil {
			return nil, err
		}
		ports := make([]any, len(v.ports))
		for i, p := range v.ports {
			sig := v.signals[p.Signal]
			ports[i] = map[string]any{
				"name":  sig.Name,
				"width": int64(sig.Width),
				"dir":   p.Dir.String(),
			}
		}
		signals := make([]any, 0, len(v.signals))
		sigNames := make(map[string]bool, len(v.signals))
		for _, sig := range v.signals {
			if sig == nil {
				continue
			}
			if sigNames[sig.Name] {
				return nil, fmt.Errorf("duplicate signal name %q: uniquify before fingerprinting", sig.Name)
			}
			sigNames[sig.Name] = true
			signals = append(signals, map[string]any{
				"name":  sig.Name,
				"width": int64(sig.Width),
			})
		}
		sort.Slice(signals, func(i, j int) bool {
			return signals[i].(map[string]any)["name"].(string) < signals[j].(map[string]any)["name"].(string)
		})
		instances := make([]any, 0, len(v.instances))
		instNames := make(map[string]bool, len(v.instances))
		for _, inst := range v.instances {
			if inst == nil {
				continue
			}
			if instNames[inst.name] {
				return nil, fmt.Errorf("duplicate instance name %q: uniquify before fingerprinting", inst.name)
			}
			instNames[inst.name] = true
			instParams, err := paramsCanonical(inst.params)
			if err != nil {
				return nil, err
			}
			conns := make([]any, len(inst.conns))
			for i, s := range inst.conns {
				sig := v.Signal(s.Signal)
				start, end := 0, sig.Width
				if s.Range != nil {
					start, end = s.Range.Start, s.Range.End
				}
				conns[i] = map[string]any{
					"signal": sig.Name,
					"start":  int64(start),
					"end":    int64(end),
				}
			}
			instances = append(instances, map[string]any{
				"name":   inst.name,
				"child":  lib.Def(inst.child).Name(),
				"conns":  conns,
				"params": instParams,
			})
		}
		sort.Slice(instances, func(i, j int) bool {
			return instances[i].(map[string]any)["name"].(string) < instances[j].(map[string]any)["name"].(string)
		})
		return map[string]any{
			"kind":      "cell",
			"ports":     ports,
			"signals":   signals,
			"instances": instances,
			"params":    params,
		}, nil
	default:
		return nil, fmt.Errorf("unknown definition type %T", d)
	}
}

func namedPortShapes(ports []PortSpec) []any {
	out := make([]any, len(ports))
	for i, p := range ports {
		out[i] = map[string]any{
			"name":  p.Name,
			"width": int64(p.Width),
			"dir":   p.Dir.String(),
		}
	}
	return out
}
