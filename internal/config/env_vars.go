package config

import (
	"os"
)

const (
	apiBaseURLVar  = "API_BASE_URL"
	appNameVar     = "APP_NAME"
	dataFolderVar  = "DATA_FOLDER"
	httpTimeoutVar = "HTTP_TIMEOUT"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAPIBaseURL returns the base URL of the animation backend
// (e.g. "https://api.manimforge.io"). All REST paths are relative to it.
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8000")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Manim Forge")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(dataFolderVar, "")
}

// GetHTTPTimeout returns the request timeout as a Go duration string.
// Empty means no client-side timeout beyond the transport default.
func (EnvVars) GetHTTPTimeout() string {
	return GetEnv(httpTimeoutVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
