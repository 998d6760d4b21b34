package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const memoryConfig = `
port: "8090"
storeBackend: "memory"
indexBackend: "chromem"
embeddingProvider: "ollama"
embeddingBaseURL: "http://127.0.0.1:1"
embeddingModel: "nomic-embed-text"
embeddingDim: 8
generationProvider: "openai"
generationBaseURL: "http://127.0.0.1:1/v1"
generationModel: "qwen2.5"
`

func TestRunReindexesEmptyStore(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(memoryConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := run(context.Background(), []string{"-config", cfgPath, "-user", "u1"}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("err = %v, want load config error", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-bogus"}); err == nil {
		t.Fatal("expected flag error")
	}
}
