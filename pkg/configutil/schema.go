package configutil

import (
	"errors"
	"sort"
	"strings"
)

// Schema names the keys a provider's settings map may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks a settings map against a schema before
// decoding, so a misconfigured provider fails at startup with the
// offending keys named rather than at the first call.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
		allowed[normalizeKey(k)] = struct{}{}
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = struct{}{}
	}

	var missing, unknown []string
	seen := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		seen[nk] = true
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
		if reqKey, ok := required[nk]; ok && isEmptyValue(v) {
			missing = append(missing, reqKey)
		}
	}
	for nk, reqKey := range required {
		if !seen[nk] {
			missing = append(missing, reqKey)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
