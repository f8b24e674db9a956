// Package configutil decodes the free-form vendor settings maps found in
// the config file into typed provider options.
package configutil

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
)

// DecodeSettings decodes a settings map into out using mapstructure tags.
// Numbers and booleans given as strings are converted.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		MatchName: func(mapKey, fieldName string) bool {
			return NormalizeKey(mapKey) == NormalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Decode validates input against schema, then decodes it into out. Errors
// carry errorsx.ReasonConfigInvalid.
func Decode(provider string, input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(provider, input, schema); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := DecodeSettings(input, out); err != nil {
		return errorsx.Wrap(fmt.Errorf("%s settings: %w", provider, err), errorsx.ReasonConfigInvalid)
	}
	return nil
}

// RequireString ensures a value is present for a required config field.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return errorsx.Wrap(fmt.Errorf("%s is required", path), errorsx.ReasonConfigInvalid)
	}
	return nil
}

// NormalizeKey folds case and drops '_' and '-', so "backend-url",
// "backend_url" and "BackendURL" compare equal.
func NormalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
