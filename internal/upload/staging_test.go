package upload

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kenneth/splitstore/internal/archive"
)

func TestBuildStagedReader_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &archive.Archive{
		ID:       "arc1",
		IsBundle: false,
		Files:    []archive.File{{StagingPath: path, DisplayName: "plain.bin", Size: 11}},
	}

	sr, err := BuildStagedReader(a, dir)
	if err != nil {
		t.Fatalf("BuildStagedReader: %v", err)
	}
	defer sr.Close()

	if sr.Size != 11 {
		t.Errorf("Size = %d, want 11", sr.Size)
	}
	got, _ := io.ReadAll(sr)
	if string(got) != "hello world" {
		t.Errorf("content = %q", got)
	}
}

func TestBuildStagedReader_Bundle(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.txt")
	p2 := filepath.Join(dir, "b.txt")
	os.WriteFile(p1, []byte("AAA"), 0o644)
	os.WriteFile(p2, []byte("BBBB"), 0o644)

	a := &archive.Archive{
		ID:       "arc2",
		IsBundle: true,
		Files: []archive.File{
			{StagingPath: p1, InternalName: "a.txt", DisplayName: "a.txt", Size: 3},
			{StagingPath: p2, InternalName: "b.txt", DisplayName: "b.txt", Size: 4},
		},
	}

	sr, err := BuildStagedReader(a, dir)
	if err != nil {
		t.Fatalf("BuildStagedReader: %v", err)
	}
	defer sr.Close()

	data, err := io.ReadAll(sr)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("got %d zip entries, want 2", len(zr.File))
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["0_a.txt"] || !names["1_b.txt"] {
		t.Errorf("unexpected entry names: %v", names)
	}
}

func TestSafeZipName_SanitizesUnsafeCharacters(t *testing.T) {
	got := ZipEntryName(5, "my file/../name?.txt")
	want := "5_my_file_.._name_.txt"
	if got != want {
		t.Errorf("ZipEntryName = %q, want %q", got, want)
	}
}
