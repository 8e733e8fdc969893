package device

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseLeadingInt reads an optionally signed run of digits at the start of s,
// ignoring surrounding whitespace and anything after the digits. The firmware
// sometimes appends a unit or a newline to numeric answers. Values that do not
// fit an int saturate so that callers clamp them like any other large value.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		return v, true
	}
	if err != nil {
		return 0, false
	}
	return v, true
}
