package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvOr returns the value of key, or def if it is unset or empty.
func EnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// setString assigns key's value to dst when set.
func setString(dst *string, key string) {
	*dst = EnvOr(key, *dst)
}

// setDuration parses key as a time.Duration into dst when set.
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

// setBool parses key as a bool into dst when set.
func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
