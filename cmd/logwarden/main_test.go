package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logwarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: clickhouse
  clickhouse:
    dsn: clickhouse://default:hunter2@db:9000/default
    password: hunter2
logging:
  level: error
`)

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "backend: clickhouse")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigCommand_RejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
detector:
  min_threshold: 0
logging:
  level: error
`)

	_, err := execute(t, "config", "--config", path)
	assert.ErrorContains(t, err, "detector.min_threshold")
}

func TestSchemaCommand_PrintsSQLiteDDL(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  table: events
logging:
  level: error
`)

	out, err := execute(t, "schema", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS events")

	_, err = execute(t, "schema", "--config", writeConfig(t, "logging:\n  level: error\n"))
	assert.ErrorContains(t, err, "has no schema")
}

func TestSeedCommand_InsertsRows(t *testing.T) {
	db := filepath.Join(t.TempDir(), "seed.db")
	path := writeConfig(t, `
storage:
  backend: sqlite
  batch_size: 4
  sqlite:
    path: `+db+`
logging:
  level: error
`)

	out, err := execute(t, "seed", "--config", path, "--count", "10", "--seed", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "inserted 10 rows")
}

func TestRunCommand_ProcessesFiles(t *testing.T) {
	dir := t.TempDir()
	auth := filepath.Join(dir, "auth.log")
	lines := []string{
		"Mar 12 15:00:01 host sshd[42]: Failed password for root from 203.0.113.5 port 50000 ssh2",
		"Mar 12 15:00:02 host sshd[42]: Failed password for root from 203.0.113.5 port 50000 ssh2",
		"not an sshd line",
	}
	require.NoError(t, os.WriteFile(auth, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	path := writeConfig(t, `
detector:
  min_threshold: 2
  use_event_time: true
logging:
  level: error
`)

	out, err := execute(t, "run", "--config", path, "--auth", auth)
	require.NoError(t, err)
	assert.Contains(t, out, auth)
	assert.Regexp(t, `TOTAL\s+3\s+1\s+1\s+2\s+0`, out)

	_, err = execute(t, "run", "--config", path)
	assert.ErrorContains(t, err, "sources")
}
