package standardize

import "strings"

// ParseDate converts the date forms PSP exports use into ISO dates.
// "09.07.1994" and "2009-11-04 00" both become "2009-07-09" style values;
// anything else maps to the empty string (NULL).
func ParseDate(raw string) string {
	d := strings.TrimSpace(raw)
	if d == "" {
		return ""
	}
	if parts := strings.Split(d, "."); len(parts) == 3 {
		return parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
	}
	if strings.Contains(d, "-") {
		return strings.SplitN(d, " ", 2)[0]
	}
	return ""
}

// ParseDateTime joins the PSP date and time columns into an ISO timestamp.
// With a time like "14:05" the result is "2025-11-19T14:05:00"; without one
// it degrades to the bare date.
func ParseDateTime(dateRaw, timeRaw string) string {
	d := strings.TrimSpace(dateRaw)
	t := strings.TrimSpace(timeRaw)
	if d == "" || !strings.Contains(d, ".") {
		return ""
	}
	parts := strings.Split(d, ".")
	if len(parts) != 3 {
		return ""
	}
	iso := parts[2] + "-" + pad2(parts[1]) + "-" + pad2(parts[0])
	if t != "" && strings.Contains(t, ":") {
		return iso + "T" + t + ":00"
	}
	return iso
}

// ParseGender maps the PSP gender column to the standard vocabulary.
func ParseGender(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "M":
		return "male"
	case "Z", "Ž":
		return "female"
	default:
		return ""
	}
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
