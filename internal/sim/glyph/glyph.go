package glyph

// Glyph is one cell of the grid.
type Glyph = byte

const (
	Empty Glyph = '.'
	Bang  Glyph = '*'
)

// alphabet is the ordinal order used by the numeric operators.
// NOTE: changing the order changes every sum/remainder result and breaks replay of old logs.
var alphabet = [...]Glyph{
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd',
	'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r',
	's', 't', 'u', 'v', 'w', 'x', 'y', 'z', '.', '*', ':', ';', '#',
}

// Count is the size of the ordinal alphabet.
const Count = len(alphabet)

// ordinals maps a byte to its alphabet position plus one; zero means "not in the alphabet".
var ordinals [256]uint8

func init() {
	for i, g := range alphabet {
		ordinals[g] = uint8(i + 1)
	}
	// Uppercase letters share the slot of their lowercase twin.
	for c := 'A'; c <= 'Z'; c++ {
		ordinals[c] = ordinals[c-'A'+'a']
	}
	// The empty glyph counts as zero.
	ordinals[Empty] = 0
}

// Lower folds an uppercase letter to lowercase; every other byte is returned as is.
func Lower(g Glyph) Glyph {
	if g >= 'A' && g <= 'Z' {
		return g - 'A' + 'a'
	}
	return g
}

// IsUpper reports whether g is an uppercase letter.
func IsUpper(g Glyph) bool { return g >= 'A' && g <= 'Z' }

// Valid reports whether g may be stored in a grid cell: an alphabet symbol or an uppercase letter.
func Valid(g Glyph) bool {
	return g == Empty || ordinals[g] != 0
}

// Ordinal returns the alphabet position of g after case folding.
// '.' and bytes outside the alphabet return 0.
func Ordinal(g Glyph) int {
	o := ordinals[g]
	if o == 0 {
		return 0
	}
	return int(o) - 1
}

// At returns the glyph at ordinal position i, wrapping modulo Count.
func At(i int) Glyph {
	i %= Count
	if i < 0 {
		i += Count
	}
	return alphabet[i]
}

// Alphabet returns a copy of the ordinal alphabet in order.
func Alphabet() []Glyph {
	out := make([]Glyph, Count)
	copy(out, alphabet[:])
	return out
}

// Sum returns the glyph whose ordinal is ordinal(a)+ordinal(b), modulo the alphabet size.
func Sum(a, b Glyph) Glyph {
	return alphabet[(Ordinal(a)+Ordinal(b))%Count]
}

// Remainder returns the glyph whose ordinal is ordinal(a) mod ordinal(b).
// A zero divisor yields '0'.
func Remainder(a, b Glyph) Glyph {
	ib := Ordinal(b)
	if ib == 0 {
		return alphabet[0]
	}
	return alphabet[Ordinal(a)%ib]
}

// Sanitize replaces every byte that is not a valid cell glyph with '.'.
func Sanitize(g Glyph) Glyph {
	if Valid(g) {
		return g
	}
	return Empty
}
