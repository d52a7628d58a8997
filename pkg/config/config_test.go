package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port < 0 {
		return errors.New("port must not be negative")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	path := writeFile(t, "name: ${SAMPLE_NAME}\n")

	cfg := sample{Port: 8080}
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoad_RunsValidator(t *testing.T) {
	path := writeFile(t, "port: -1\n")

	var cfg sample
	err := Load(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "port: [\n")

	var cfg sample
	err := Load(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadWithDefaults_MissingFileKeepsTarget(t *testing.T) {
	cfg := sample{Name: "default", Port: 1}
	require.NoError(t, LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))
	assert.Equal(t, "default", cfg.Name)
}

func TestLoadWithDefaults_MissingFileStillValidates(t *testing.T) {
	cfg := sample{Port: -5}
	require.Error(t, LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))
}

func TestLoadWithDefaults_ExistingFile(t *testing.T) {
	path := writeFile(t, "port: 9000\n")
	cfg := sample{Port: 1}
	require.NoError(t, LoadWithDefaults(path, &cfg))
	assert.Equal(t, 9000, cfg.Port)
}
