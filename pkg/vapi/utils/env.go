package utils

import (
	"os"
	"strings"
)

// IsProdEnv reports whether env names a production deployment.
func IsProdEnv(env string) bool {
	env = strings.ToLower(env)
	return env == "production" || env == "prod"
}

// IsDev returns true if the application is running in development environment
func IsDev() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "development" || env == "dev" || env == ""
}
