package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	ref, err := fs.Upload(ctx, "u1", "c1.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := filepath.Join(dir, "content", "u1", "c1.pdf")
	if ref != "file://"+want {
		t.Fatalf("ref = %q, want file://%s", ref, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("stored = %q, %v", data, err)
	}
	if err := fs.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(want); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if err := fs.Delete(ctx, ref); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFileStoreRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	ctx := context.Background()
	ref, err := fs.Upload(ctx, "../u1", "../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rel, err := filepath.Rel(dir, strings.TrimPrefix(ref, "file://"))
	if err != nil || strings.HasPrefix(rel, "..") || strings.Count(filepath.ToSlash(rel), "/") != 2 {
		t.Fatalf("ref escapes base: %s", ref)
	}
	if _, err := fs.Upload(ctx, "..", "k", []byte("x")); err == nil {
		t.Fatalf("expected error for dot-dot user")
	}
	if err := fs.Delete(ctx, "file:///etc/passwd"); err == nil {
		t.Fatalf("expected error deleting outside base")
	}
	if err := fs.Delete(ctx, "s3://bucket/key"); err == nil {
		t.Fatalf("expected error for foreign ref")
	}
}

func TestObjectKey(t *testing.T) {
	key, err := objectKey("u1", "c1.pdf")
	if err != nil || key != "content/u1/c1.pdf" {
		t.Fatalf("objectKey = %q, %v", key, err)
	}
	if _, err := objectKey("", "k"); err == nil {
		t.Fatalf("expected error for empty user")
	}
}
