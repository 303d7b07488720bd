package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFiles returns the .env files considered for appEnv, lowest precedence first.
func EnvFiles(dir, appEnv string) []string {
	mode := EnvDevelopment
	if appEnv == EnvProduction {
		mode = EnvProduction
	}
	names := []string{".env", ".env." + mode, ".env.local", ".env." + mode + ".local"}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(dir, n))
	}
	return out
}

// LoadEnvFiles applies the existing files from EnvFiles in order with
// godotenv.Load, which never overwrites a variable that is already set. The
// real environment therefore beats every file and an earlier file beats a
// later one. It returns the files that were applied.
func LoadEnvFiles(dir, appEnv string) ([]string, error) {
	var loaded []string
	for _, p := range EnvFiles(dir, appEnv) {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}
