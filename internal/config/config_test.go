package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "config")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
	return path
}

const validConfig = `
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
embedding:
  model: text-embedding-3-small
  dimensions: 1536
`

func TestLoad_Valid(t *testing.T) {
	writeConfig(t, validConfig)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("unexpected model %q", cfg.Embedding.Model)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	writeConfig(t, validConfig)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected read timeout default 10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != "valkey" {
		t.Errorf("expected driver default valkey, got %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.RRFK != 60 {
		t.Errorf("expected rrf_k default 60, got %d", cfg.Pipeline.RRFK)
	}
	if cfg.Pipeline.BranchTimeoutMS != 2000 {
		t.Errorf("expected branch timeout default 2000, got %d", cfg.Pipeline.BranchTimeoutMS)
	}
	if cfg.Corpus.IndexName != "technical_docs" {
		t.Errorf("expected index name default technical_docs, got %q", cfg.Corpus.IndexName)
	}
	if cfg.Trace.Capacity != 256 {
		t.Errorf("expected trace capacity default 256, got %d", cfg.Trace.Capacity)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret-key")
	writeConfig(t, `
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
embedding:
  api_key: ${TEST_API_KEY}
  model: text-embedding-3-small
  dimensions: 1536
`)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.APIKey != "secret-key" {
		t.Errorf("expected expanded api key, got %q", cfg.Embedding.APIKey)
	}
}

func TestLoad_EnvVarDefault(t *testing.T) {
	writeConfig(t, `
http:
  port: ${UNSET_PORT:-8080}
database:
  addrs: ["localhost:6379"]
embedding:
  model: text-embedding-3-small
  dimensions: 1536
`)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default-expanded port 8080, got %d", cfg.HTTP.Port)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	writeConfig(t, `
http:
  port: 99999
database:
  addrs: ["localhost:6379"]
embedding:
  model: text-embedding-3-small
  dimensions: 1536
`)

	if _, err := Load("test"); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoad_MissingAddrs(t *testing.T) {
	writeConfig(t, `
http:
  port: 8080
embedding:
  model: text-embedding-3-small
  dimensions: 1536
`)

	if _, err := Load("test"); err == nil {
		t.Fatal("expected error for missing database.addrs")
	}
}

func TestLoad_RerankEnabledRequiresURL(t *testing.T) {
	writeConfig(t, `
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
embedding:
  model: text-embedding-3-small
  dimensions: 1536
rerank:
  enabled: true
`)

	if _, err := Load("test"); err == nil {
		t.Fatal("expected error for enabled rerank without base_url")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})

	if _, err := Load("nonexistent"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
