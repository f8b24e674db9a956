package configutil

import (
	"sort"
	"strings"
)

// Schema lists the keys a provider accepts in its settings map.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SettingsError reports missing and unrecognised settings keys.
type SettingsError struct {
	Provider string
	Missing  []string
	Unknown  []string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	msg := strings.Join(parts, "; ")
	if e.Provider != "" {
		msg = e.Provider + " settings: " + msg
	}
	return msg
}

// ValidateSettings checks input against schema. Keys match regardless of
// case, underscores and hyphens; blank strings count as missing.
func ValidateSettings(provider string, input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Required {
		required[NormalizeKey(k)] = k
		allowed[NormalizeKey(k)] = struct{}{}
	}
	for _, k := range schema.Optional {
		allowed[NormalizeKey(k)] = struct{}{}
	}

	serr := &SettingsError{Provider: provider}
	present := make(map[string]bool, len(input))
	for k, v := range input {
		nk := NormalizeKey(k)
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			serr.Unknown = append(serr.Unknown, k)
		}
		if !isBlank(v) {
			present[nk] = true
		}
	}
	for nk, k := range required {
		if !present[nk] {
			serr.Missing = append(serr.Missing, k)
		}
	}
	if len(serr.Missing) == 0 && len(serr.Unknown) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unknown)
	return serr
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
