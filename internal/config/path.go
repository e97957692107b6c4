package config

import (
	"os"
	"path/filepath"
	"runtime"
)

var fileNames = []string{"hydro.toml", "hydro.yaml", "hydro.yml"}

// Dir is the per-user configuration directory, overridable with
// HYDRO_CONFIG_DIR.
func Dir() string {
	if override := os.Getenv("HYDRO_CONFIG_DIR"); override != "" {
		return override
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".hydro"
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "hydro")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "hydro")
	default:
		return filepath.Join(home, ".config", "hydro")
	}
}

// Discover returns the first hydro config file found in dir.
func Discover(dir string) (string, bool) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
