package lock

// Mode is an element of the lock lattice {None, IS, IX, S, X}
// (spec.md §3).
type Mode uint8

const (
	ModeNone Mode = iota
	ModeIS        // Intent Shared
	ModeIX        // Intent Exclusive
	ModeS         // Shared
	ModeX         // Exclusive
)

func (m Mode) String() string {
	switch m {
	case ModeIS:
		return "IS"
	case ModeIX:
		return "IX"
	case ModeS:
		return "S"
	case ModeX:
		return "X"
	default:
		return "None"
	}
}

// compatibility[requested][held] reports whether a request for
// `requested` is compatible with a resource already granted in `held`,
// per the matrix in spec.md §3.
var compatibility = [5][5]bool{
	ModeNone: {true, true, true, true, true},
	ModeIS:   {true, true, true, true, false},
	ModeIX:   {true, true, true, false, false},
	ModeS:    {true, true, false, true, false},
	ModeX:    {true, false, false, false, false},
}

// CompatibleWith reports whether a request for mode `requested` is
// compatible with a resource currently held in `held`.
func CompatibleWith(requested, held Mode) bool {
	return compatibility[requested][held]
}

// CompatibleWithAll reports whether `requested` is compatible with every
// mode in `held` (e.g. the modes of every other Granted request on a
// LockHead).
func CompatibleWithAll(requested Mode, held []Mode) bool {
	for _, h := range held {
		if !CompatibleWith(requested, h) {
			return false
		}
	}
	return true
}

// covers[a][b] reports whether holding mode a implies mode b's rights
// (spec.md §3: X covers all; S covers IS; IX covers IS).
var covers = [5][5]bool{
	ModeNone: {true, false, false, false, false},
	ModeIS:   {true, true, false, false, false},
	ModeIX:   {true, true, true, false, false},
	ModeS:    {true, true, false, true, false},
	ModeX:    {true, true, true, true, true},
}

// Covers reports whether holding `a` implies `b`'s rights.
func Covers(a, b Mode) bool {
	return covers[a][b]
}

// Supremum returns the least mode whose rights cover every mode in modes
// — the "effective granted mode" of a LockHead's grant list (spec.md
// §4.1 granting algorithm step 1). Supremum of an empty slice is
// ModeNone.
func Supremum(modes []Mode) Mode {
	sup := ModeNone
	for _, m := range modes {
		if !Covers(sup, m) {
			// Find the weakest mode that covers both sup and m.
			sup = join(sup, m)
		}
	}
	return sup
}

// join returns the weakest mode whose rights cover both a and b.
func join(a, b Mode) Mode {
	if Covers(a, b) {
		return a
	}
	if Covers(b, a) {
		return b
	}
	// Neither covers the other: IS/IX mix covers down to IX; anything
	// involving S or X that doesn't already cover the other escalates to
	// X, the only mode that covers every other mode.
	if (a == ModeIS && b == ModeIX) || (a == ModeIX && b == ModeIS) {
		return ModeIX
	}
	return ModeX
}
