// Package env reads apmz configuration from environment variables.
package env

import (
	"os"
	"strconv"
	"strings"
)

// Get returns the environment variable value or the default.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Bool parses a boolean variable, falling back to the default when unset or malformed.
func Bool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(Get(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// Float parses a float variable, falling back to the default when unset or malformed.
func Float(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(Get(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// List splits a comma separated variable, dropping empty entries.
func List(key string) []string {
	raw := Get(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
