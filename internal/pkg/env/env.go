package env

import (
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

// Env holds the values read from the .env file. It wins over the process
// environment so a local file can override a shell export.
var Env map[string]string

func GetEnv(key, def string) string {
	if val, ok := Lookup(key); ok {
		return val
	}
	return def
}

// Lookup reports whether key is configured. An empty process variable
// counts as unset; an empty .env entry does not.
func Lookup(key string) (string, bool) {
	if val, ok := Env[key]; ok {
		return val, true
	}
	if val := os.Getenv(key); val != "" {
		return val, true
	}
	return "", false
}

// SetupEnvFile loads ENV_FILE, or else the first .env found between the
// working directory and the project root. Running without one is fine:
// containers get their configuration from the process environment.
func SetupEnvFile() {
	for _, envFile := range envFileCandidates() {
		values, err := godotenv.Read(envFile)
		if err == nil {
			Env = values
			log.Infof("[Env] Loaded %d values from %s", len(values), envFile)
			return
		}
		if !os.IsNotExist(err) {
			log.Warnf("[Env] Could not read %s: %v", envFile, err)
		}
	}

	Env = map[string]string{}
	log.Info("[Env] No .env file found, using process environment only")
}

func envFileCandidates() []string {
	if explicit := os.Getenv("ENV_FILE"); explicit != "" {
		return []string{explicit}
	}
	return []string{
		".env",          // Current directory
		"../../.env",    // From cmd/payfox to project root
		"../../../.env", // Fallback for deeper nesting
	}
}
