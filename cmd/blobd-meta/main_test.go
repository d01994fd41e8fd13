package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bleepstore/blobd/internal/auth"
	"github.com/bleepstore/blobd/internal/metadata"
	"github.com/bleepstore/blobd/internal/storage"
)

// writeConfig points the metadata engine at a SQLite file in a temp dir.
func writeConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "metadata.db")
	cfgPath = filepath.Join(dir, "blobd.yaml")
	body := fmt.Sprintf(`
auth:
  jwt_secret: meta-test-secret
  issuer: blobd
metadata:
  engine: sqlite
  sqlite:
    path: %s
`, dbPath)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dbPath
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, _, err := run(t, "", "token", "--config", cfgPath, "--subject", "alice", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	v, err := auth.NewVerifier("meta-test-secret", "blobd")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := v.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if left := time.Until(claims.ExpiresAt); left > 5*time.Minute || left < 4*time.Minute {
		t.Errorf("expiry in %v, want about 5m", left)
	}
}

func TestTokenRequiresSubject(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, _, err := run(t, "", "token", "--config", cfgPath); err == nil {
		t.Error("expected error without --subject")
	}
}

func TestExportImportInspect(t *testing.T) {
	ctx := context.Background()
	srcCfg, srcDB := writeConfig(t)

	src, err := metadata.NewSQLiteStore(srcDB)
	if err != nil {
		t.Fatal(err)
	}
	err = src.Create(ctx, &metadata.BlobRecord{
		ID:        "doc-1",
		Size:      11,
		Backend:   storage.TagLocal,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	src.Close()
	if err != nil {
		t.Fatal(err)
	}

	exported, _, err := run(t, "", "export", "--config", srcCfg)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(exported, `"doc-1"`) {
		t.Fatalf("export output missing record:\n%s", exported)
	}

	dstCfg, _ := writeConfig(t)
	_, stderr, err := run(t, exported, "import", "--config", dstCfg)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(stderr, "1 imported") {
		t.Errorf("import summary = %q", stderr)
	}

	_, stderr, err = run(t, exported, "import", "--config", dstCfg)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(stderr, "0 imported, 1 skipped") {
		t.Errorf("second import summary = %q", stderr)
	}

	out, _, err := run(t, "", "inspect", "--config", dstCfg, "doc-1")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var got inspectOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("inspect output: %v\n%s", err, out)
	}
	if got.Size != 11 || got.Backend != "local" || got.CreatedAt != "2026-03-01T09:00:00.000Z" {
		t.Errorf("inspect = %+v", got)
	}

	if _, _, err := run(t, "", "inspect", "--config", dstCfg, "missing"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if _, _, err := run(t, "", "token", "--config", missing, "--subject", "x"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
