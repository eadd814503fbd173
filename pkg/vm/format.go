package vm

import (
	"math"
	"strconv"
	"strings"
)

// FormatNumber renders f the way PRINT shows numbers: fixed point with at
// most three fractional digits, trailing zeros and a bare point removed.
func FormatNumber(f float32) string {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	}
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
