package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, version+"\n") || !strings.Contains(out, "platform: ") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSweepCommandMemoryStore(t *testing.T) {
	path := writeConfig(t, "log_level: error\nstorage:\n  driver: memory\n")
	out, err := execute(t, "--config", path, "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, `"connections":0`) || !strings.Contains(out, `"lag_findings":0`) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestMigrateCommandSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tickguard.db")
	path := writeConfig(t, "log_level: error\nstorage:\n  driver: sqlite\n  dsn: \"file:"+db+"\"\n")
	if _, err := execute(t, "--config", path, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(db); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	if _, err := execute(t, "--config", path, "migrate"); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: cassandra\n")
	if _, err := execute(t, "--config", path, "migrate"); err == nil {
		t.Fatalf("expected config validation error")
	}
}
