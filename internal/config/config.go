package config

type Config interface {
	EnvConfig
}

type EnvConfig interface {
	GetAPIBaseURL() string
	GetAppName() string
	GetDataFolder() string
	GetHTTPTimeout() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
