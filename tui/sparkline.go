package tui

import "strings"

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders the last width values scaled between their min and max.
func sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	top := len(sparkRunes) - 1
	for _, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(top))
		}
		idx = max(0, min(top, idx))
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}
