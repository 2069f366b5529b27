package log

import "strings"

// RedactEmail keeps the first two characters of the local part and the
// domain, enough to correlate log lines without recording the address.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
