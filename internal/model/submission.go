package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ValidationStatus is the review state attached to a submission by the survey backend
type ValidationStatus struct {
	UID   string `json:"uid"`
	Label string `json:"label"`
}

// Submission is one respondent's answers, flattened to trailing leaf keys.
// Values are strings, numbers, booleans or ValidationStatus.
type Submission map[string]any

// Lookup returns the value stored under key rendered as a string. A missing
// key, a nil value, an empty or whitespace-only string or an unsupported
// value type all report false. Values are not trimmed.
func (s Submission) Lookup(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	raw, ok := s[key]
	if !ok || raw == nil {
		return "", false
	}

	var val string
	switch v := raw.(type) {
	case string:
		val = v
	case float64:
		val = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		val = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		val = strconv.Itoa(v)
	case int64:
		val = strconv.FormatInt(v, 10)
	case json.Number:
		val = v.String()
	case bool:
		val = strconv.FormatBool(v)
	case ValidationStatus:
		val = v.Label
	case *ValidationStatus:
		if v == nil {
			return "", false
		}
		val = v.Label
	default:
		return "", false
	}

	// Whitespace-only means unanswered; anything else is compared verbatim
	if strings.TrimSpace(val) == "" {
		return "", false
	}
	return val, true
}
