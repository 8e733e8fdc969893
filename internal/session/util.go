package session

import "strings"

// trimStatus strips the whitespace the firmware pads status answers with.
func trimStatus(raw string) string {
	return strings.TrimSpace(raw)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func joinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
