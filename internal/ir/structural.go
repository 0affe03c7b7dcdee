package ir

// StructurallyEqual reports whether two definitions have identical shape:
// port widths and directions, device kinds, connectivity topology, and
// parameter values, ignoring all names. The flattener uses this as the
// authoritative check behind CellDigest candidate matches.
func StructurallyEqual(lib *Library, a, b CellID) bool {
	if a == b {
		return true
	}
	da, db := lib.Def(a), lib.Def(b)
	if da == nil || db == nil {
		return false
	}
	switch va := da.(type) {
	case *Primitive:
		vb, ok := db.(*Primitive)
		return ok && va.kind == vb.kind &&
			portSpecsEqual(va.ports, vb.ports) &&
			ParamsEqual(va.params, vb.params)
	case *BlackBox:
		vb, ok := db.(*BlackBox)
		if !ok || !portSpecsEqual(va.ports, vb.ports) || !ParamsEqual(va.params, vb.params) {
			return false
		}
		if len(va.templates) != len(vb.templates) {
			return false
		}
		for dialect, text := range va.templates {
			if vb.templates[dialect] != text {
				return false
			}
		}
		return true
	case *Cell:
		vb, ok := db.(*Cell)
		if !ok {
			return false
		}
		return cellsStructurallyEqual(lib, va, vb)
	default:
		return false
	}
}

func portSpecsEqual(a, b []PortSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Width != b[i].Width || a[i].Dir != b[i].Dir {
			return false
		}
	}
	return true
}

func cellsStructurallyEqual(lib *Library, a, b *Cell) bool {
	if len(a.signals) != len(b.signals) || len(a.ports) != len(b.ports) ||
		len(a.instances) != len(b.instances) || !ParamsEqual(a.params, b.params) {
		return false
	}
	for i := range a.signals {
		sa, sb := a.signals[i], b.signals[i]
		if (sa == nil) != (sb == nil) {
			return false
		}
		if sa != nil && sa.Width != sb.Width {
			return false
		}
	}
	for i := range a.ports {
		if a.ports[i].Signal != b.ports[i].Signal || a.ports[i].Dir != b.ports[i].Dir {
			return false
		}
	}
	for i := range a.instances {
		ia, ib := a.instances[i], b.instances[i]
		if (ia == nil) != (ib == nil) {
			return false
		}
		if ia == nil {
			continue
		}
		if !ParamsEqual(ia.params, ib.params) || len(ia.conns) != len(ib.conns) {
			return false
		}
		for j := range ia.conns {
			if !slicesEqualNormalized(a, b, ia.conns[j], ib.conns[j]) {
				return false
			}
		}
		// The instantiation relation is acyclic, so this recursion
		// terminates.
		if !StructurallyEqual(lib, ia.child, ib.child) {
			return false
		}
	}
	return true
}

func slicesEqualNormalized(ca, cb *Cell, a, b Slice) bool {
	if a.Signal != b.Signal {
		return false
	}
	as, ae := normalizeRange(ca, a)
	bs, be := normalizeRange(cb, b)
	return as == bs && ae == be
}

func normalizeRange(c *Cell, s Slice) (int, int) {
	if s.Range != nil {
		return s.Range.Start, s.Range.End
	}
	if sig := c.Signal(s.Signal); sig != nil {
		return 0, sig.Width
	}
	return 0, 0
}
