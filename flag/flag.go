package flag

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errSizeRange = errors.New("size out of range")

// shifts maps a unit suffix, lower-cased, to its power of two. "K" and
// "KiB" are the same unit.
var shifts = map[string]uint{
	"":    0,
	"b":   0,
	"k":   10,
	"kib": 10,
	"m":   20,
	"mib": 20,
	"g":   30,
	"gib": 30,
}

// splitUnit splits s into its number and a trailing unit of letters. After
// 0x a hex digit belongs to the number, so 0x1b has no unit.
func splitUnit(s string) (string, string) {
	i := len(s)
	for i > 0 && isUnitLetter(s[i-1]) {
		i--
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		for i < len(s) && strings.IndexByte("abcdefABCDEF", s[i]) >= 0 {
			i++
		}
	}

	return s[:i], s[i:]
}

func isUnitLetter(c byte) bool {
	return strings.IndexByte("bBkKmMgGiI", c) >= 0
}

// ParseSize parses a size string as number[K|KiB|M|MiB|G|GiB], case
// insensitive. The unit is optional, and if not set, the unit passed in is
// used. The number can be in any base strconv accepts.
func ParseSize(s, unit string) (int, error) {
	sz, suffix := splitUnit(s)
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q: can't parse as num[KiB|MiB|GiB]: %w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 64)
	if err != nil {
		return -1, err
	}

	if len(suffix) > 0 {
		unit = suffix
	}

	shift, ok := shifts[strings.ToLower(unit)]
	if !ok {
		return -1, fmt.Errorf("%q: unknown unit %q: %w", s, unit, strconv.ErrSyntax)
	}

	if amt > math.MaxInt>>shift {
		return -1, fmt.Errorf("%w: %q", errSizeRange, s)
	}

	return int(amt << shift), nil
}

// ParseAddr parses a 32-bit guest-physical address with the same syntax
// as ParseSize.
func ParseAddr(s string) (uint32, error) {
	v, err := ParseSize(s, "")
	if err != nil {
		return 0, err
	}

	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %q is not a 32-bit address", errSizeRange, s)
	}

	return uint32(v), nil
}
