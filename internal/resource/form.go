package resource

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateTimeInputLayout is the layout of an HTML datetime-local input
const DateTimeInputLayout = "2006-01-02T15:04"

// ValidationError maps field names to messages
type ValidationError map[string]string

func (e ValidationError) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e[name])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// ParseForm converts submitted form values into a typed API payload.
// Checkbox fields absent from the form are sent as false.
func (k *Kind) ParseForm(values url.Values) (Item, error) {
	payload := Item{}
	errs := ValidationError{}

	for _, f := range k.Editable() {
		raw := strings.TrimSpace(values.Get(f.Name))

		if f.Type == TypeBool {
			payload[f.Name] = raw == "on" || raw == "true" || raw == "1"
			continue
		}

		if raw == "" {
			if f.Required {
				errs[f.Name] = "is required"
				continue
			}
			switch {
			case f.Nullable:
				payload[f.Name] = nil
			case f.Type == TypeInt:
				payload[f.Name] = 0
			case f.Type == TypeText, f.Type == TypeTextarea, f.Type == TypeURL, f.Type == TypeEmail:
				payload[f.Name] = ""
			}
			continue
		}

		v, err := parseValue(f, raw)
		if err != nil {
			errs[f.Name] = err.Error()
			continue
		}
		payload[f.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return payload, nil
}

func parseValue(f Field, raw string) (any, error) {
	switch f.Type {
	case TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("must be a whole number")
		}
		return n, nil
	case TypeDecimal:
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return x, nil
	case TypeDateTime:
		t, err := time.ParseInLocation(DateTimeInputLayout, raw, time.UTC)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("must be a date and time")
			}
		}
		return t.UTC().Format(time.RFC3339), nil
	case TypeEmail:
		if !strings.Contains(raw, "@") {
			return nil, fmt.Errorf("must be an email address")
		}
		return raw, nil
	case TypeURL:
		if strings.HasPrefix(raw, "/") {
			return raw, nil
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("must be a URL")
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// Format renders a field value for display
func Format(f Field, v any) string {
	if v == nil {
		return ""
	}
	switch f.Type {
	case TypeBool:
		if b, ok := v.(bool); ok && b {
			return "yes"
		}
		return "no"
	case TypeDateTime:
		if t, ok := parseTime(v); ok {
			return t.Format("2006-01-02 15:04")
		}
	case TypeInt, TypeDecimal:
		if x, ok := v.(float64); ok {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return fmt.Sprint(v)
}

// InputValue renders a field value for an HTML input
func InputValue(f Field, v any) string {
	if v == nil {
		return ""
	}
	if f.Type == TypeDateTime {
		if t, ok := parseTime(v); ok {
			return t.UTC().Format(DateTimeInputLayout)
		}
		return ""
	}
	return Format(f, v)
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
