// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value.
//
// Supported key files: gemini-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GeminiAPIKey is the filename holding the Gemini API key.
const GeminiAPIKey = "gemini-api-key"

// envNames maps secret filenames to the environment variables the rest of
// the program reads them from.
var envNames = map[string]string{
	GeminiAPIKey: "GEMINI_API_KEY",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// ApplyEnv exports known secrets as environment variables so config loading
// picks them up. Existing environment values win.
func ApplyEnv(secrets map[string]string) {
	for name, envName := range envNames {
		value, ok := secrets[name]
		if !ok || value == "" {
			continue
		}
		if os.Getenv(envName) != "" {
			continue
		}
		os.Setenv(envName, value)
	}
}
