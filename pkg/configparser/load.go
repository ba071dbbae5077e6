package configparser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadDotEnv loads a .env file into the environment. A missing file is not an error.
func LoadDotEnv(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}
	if _, err := os.Stat(filepath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(filepath); err != nil {
		return fmt.Errorf("could not load env file: %w", err)
	}
	return nil
}

// LoadYamlFile reads a YAML file and loads its leaves into the environment.
// Nested keys are joined with "_" and uppercased: database.host -> DATABASE_HOST.
// Values of the form ${VAR:-default} are resolved against the environment.
// Variables that are already set are left untouched.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}

	var root yaml.MapSlice
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}

	vars := make(map[string]string)
	flatten(nil, root, vars)

	for key, value := range vars {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("could not set env var %s: %w", key, err)
		}
	}

	return nil
}

func flatten(prefix []string, node yaml.MapSlice, out map[string]string) {
	for _, item := range node {
		key := fmt.Sprint(item.Key)
		path := append(append([]string{}, prefix...), key)

		switch v := item.Value.(type) {
		case yaml.MapSlice:
			flatten(path, v, out)
		case nil:
			// empty sections carry no variables
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			out[envName(path)] = expand(strings.Join(parts, ","))
		default:
			out[envName(path)] = expand(fmt.Sprint(v))
		}
	}
}

func envName(path []string) string {
	return strings.ToUpper(strings.Join(path, "_"))
}

// expand resolves ${VAR:-default}
func expand(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}

	inner := value[2 : len(value)-1]
	name, def, found := strings.Cut(inner, ":-")
	name = strings.TrimSpace(name)
	if env := os.Getenv(name); env != "" {
		return env
	}
	if found {
		return strings.TrimSpace(def)
	}
	return ""
}
