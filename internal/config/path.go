// Package config loads component configuration from viper and the
// environment.
//
// Every loader follows the same precedence:
//  1. Viper configuration (config file or TBEXPORT_ env vars)
//  2. Direct environment variables (ZOHO_*, GOOGLE_*, DATABASE_URL, ...)
//  3. Default values
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ExpandPath expands a leading ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// firstString returns the viper value for key, else the first non-empty env var.
func firstString(key string, envs ...string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}
	for _, env := range envs {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return ""
}
