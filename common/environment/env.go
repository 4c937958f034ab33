// Package environment applies environment-variable overrides on top of
// configuration loaded from a file.
//
// Each Override helper leaves *dst untouched when the variable is unset or
// empty.  A value that is set but cannot be parsed is an error: a typo in a
// deployment manifest should stop the process, not silently fall back.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup returns the trimmed value and whether it is non-empty.
func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// OverrideString sets *dst from name.
func OverrideString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

// OverrideBool sets *dst from name using strconv.ParseBool.
func OverrideBool(name string, dst *bool) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", name, v)
	}
	*dst = b
	return nil
}

// OverrideInt sets *dst from name as a decimal integer.
func OverrideInt(name string, dst *int) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", name, v)
	}
	*dst = n
	return nil
}

// OverrideDuration sets *dst from name using time.ParseDuration ("30s",
// "5m").
func OverrideDuration(name string, dst *time.Duration) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", name, v)
	}
	*dst = d
	return nil
}

// Secret returns the value of the variable called name, or "" when name is
// empty or unset.  Secrets are referenced by variable name in config files
// and never stored in them.
func Secret(name string) string {
	if name == "" {
		return ""
	}
	v, _ := lookup(name)
	return v
}
