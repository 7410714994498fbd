package capture

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectorManual is the selector value for manual mode.
const SelectorManual = "manual"

// ParseSelector maps a mode selector to a mode and interval in seconds.
// The selector is either "manual" or an interval in milliseconds, which must
// be a positive multiple of 1000.
func ParseSelector(selector string) (Mode, int, error) {
	sel := strings.ToLower(strings.TrimSpace(selector))
	if sel == SelectorManual {
		return ModeManual, 0, nil
	}

	ms, err := strconv.Atoi(sel)
	if err != nil {
		return ModeManual, 0, fmt.Errorf("%w: %q", ErrInvalidSelector, selector)
	}
	if ms <= 0 || ms%1000 != 0 {
		return ModeManual, 0, fmt.Errorf("%w: %dms", ErrInvalidInterval, ms)
	}
	return ModeAutomatic, ms / 1000, nil
}

// Selector is the inverse of ParseSelector.
func Selector(mode Mode, interval int) string {
	if mode == ModeManual {
		return SelectorManual
	}
	return strconv.Itoa(interval * 1000)
}
