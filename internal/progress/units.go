package progress

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Unit единица отображения объема: b, k, m, g, t
type Unit string

const (
	Bytes     Unit = "b"
	Kibibytes Unit = "k"
	Mebibytes Unit = "m"
	Gibibytes Unit = "g"
	Tebibytes Unit = "t"
)

var unitSizes = map[Unit]uint64{
	Bytes:     1,
	Kibibytes: 1 << 10,
	Mebibytes: 1 << 20,
	Gibibytes: 1 << 30,
	Tebibytes: 1 << 40,
}

// ParseUnit accepts b, k, m, g or t in either case.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := unitSizes[u]; !ok {
		return "", errors.Newf("unknown unit %q, expected one of b, k, m, g, t", s)
	}
	return u, nil
}

// Size returns the number of bytes in one unit.
func (u Unit) Size() uint64 {
	if size, ok := unitSizes[u]; ok {
		return size
	}
	return 1
}

// Label is the suffix shown after numbers, e.g. "M".
func (u Unit) Label() string {
	return strings.ToUpper(string(u))
}

// ToBytes converts n units to bytes, failing on overflow.
func (u Unit) ToBytes(n uint64) (uint64, error) {
	size := u.Size()
	if n != 0 && n > ^uint64(0)/size {
		return 0, errors.Newf("%d%s overflows", n, u.Label())
	}
	return n * size, nil
}

// Format renders bytes in this unit with up to six significant digits.
func (u Unit) Format(bytes uint64) string {
	return formatAmount(float64(bytes)/float64(u.Size())) + u.Label()
}
