package ir

// IdentRules describes a dialect's legal identifier character set and length
// limit. The uniquifier legalizes every exported name against the active
// dialect's rules.
type IdentRules struct {
	// MaxLen is the maximum identifier length; 0 means unlimited.
	MaxLen int

	// Legal reports whether a rune may appear in an identifier. Nil means
	// all runes are legal.
	Legal func(r rune) bool
}

// LegalizeChars maps every illegal rune of name to '_'. Length limits are
// handled by the uniquifier, which must reserve room for collision suffixes.
func (r IdentRules) LegalizeChars(name string) string {
	if r.Legal == nil {
		return name
	}
	out := []rune(name)
	changed := false
	for i, c := range out {
		if !r.Legal(c) {
			out[i] = '_'
			changed = true
		}
	}
	if !changed {
		return name
	}
	return string(out)
}
