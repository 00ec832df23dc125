package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvAsString returns the trimmed value of an environment variable or defaultVal when unset or blank.
func GetEnvAsString(key string, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// GetEnvAsBool parses a boolean environment variable with a default.
func GetEnvAsBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultVal
	}
}

// GetEnvAsInt retrieves an environment variable as an integer with a default fallback.
func GetEnvAsInt(name string, defaultVal int) int {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsInt64 retrieves an environment variable as an int64 with a default fallback.
func GetEnvAsInt64(name string, defaultVal int64) int64 {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsFloat retrieves an environment variable as a float64 with a default fallback.
func GetEnvAsFloat(name string, defaultVal float64) float64 {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

// GetEnvAsSeconds reads an integer number of seconds and returns it as a duration.
func GetEnvAsSeconds(name string, defaultVal time.Duration) time.Duration {
	if valStr := strings.TrimSpace(os.Getenv(name)); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			return time.Duration(val) * time.Second
		}
	}
	return defaultVal
}

// GetEnvAsSlice retrieves an environment variable as a slice of trimmed strings, split by a separator.
func GetEnvAsSlice(name string, defaultVal []string, sep string) []string {
	valStr := strings.TrimSpace(os.Getenv(name))
	if valStr == "" {
		return defaultVal
	}
	parts := strings.Split(valStr, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
