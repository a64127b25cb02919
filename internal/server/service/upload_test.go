package service

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qrdrop/internal/server/config"
	"qrdrop/internal/server/storage"
)

const testBaseURL = "http://example.test"

// --- Helpers ---

type testEnv struct {
	svc        *UploadService
	uploadDir  string
	archiveDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	archiveDir := filepath.Join(root, "zips")

	uploads := storage.NewFileSystemStore(uploadDir)
	archives := storage.NewFileSystemStore(archiveDir)
	for _, s := range []*storage.FileSystemStore{uploads, archives} {
		if err := s.EnsureDir(); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{DefaultArchiveName: "uploaded_files"}
	return &testEnv{
		svc:        NewUploadService(uploads, archives, cfg),
		uploadDir:  uploadDir,
		archiveDir: archiveDir,
	}
}

func formFile(name, content string) UploadFile {
	return UploadFile{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func emptyFormFile() UploadFile {
	return UploadFile{
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("")), nil
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open zip %s: %v", path, err)
	}
	defer reader.Close()

	out := make(map[string]string)
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(content)
	}
	return out
}

// --- Single file ---

func TestProcessUpload_SingleFile(t *testing.T) {
	t.Run("stores under original name", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "", []UploadFile{formFile("notes.txt", "hello")}, testBaseURL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Kind != KindFile {
			t.Errorf("expected kind %s, got %s", KindFile, result.Kind)
		}
		if result.Filename != "notes.txt" {
			t.Errorf("expected notes.txt, got %s", result.Filename)
		}
		if result.URL != "http://example.test/uploads/notes.txt" {
			t.Errorf("unexpected url %s", result.URL)
		}
		if result.QRCode == "" {
			t.Error("expected qr code")
		}
		if result.Size != 5 {
			t.Errorf("expected size 5, got %d", result.Size)
		}
		if got := readFile(t, filepath.Join(env.uploadDir, "notes.txt")); got != "hello" {
			t.Errorf("expected 'hello', got %q", got)
		}
	})

	t.Run("base name keeps original extension", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "report", []UploadFile{formFile("notes.txt", "hello")}, testBaseURL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Filename != "report.txt" {
			t.Errorf("expected report.txt, got %s", result.Filename)
		}
		if got := readFile(t, filepath.Join(env.uploadDir, "report.txt")); got != "hello" {
			t.Errorf("expected 'hello', got %q", got)
		}
	})

	t.Run("re-upload moves previous version aside", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		if _, err := env.svc.ProcessUpload(ctx, "", []UploadFile{formFile("notes.txt", "hello")}, testBaseURL); err != nil {
			t.Fatal(err)
		}
		if _, err := env.svc.ProcessUpload(ctx, "", []UploadFile{formFile("notes.txt", "world")}, testBaseURL); err != nil {
			t.Fatal(err)
		}

		if got := readFile(t, filepath.Join(env.uploadDir, "notes.txt")); got != "world" {
			t.Errorf("expected live content 'world', got %q", got)
		}

		var found bool
		for _, name := range listDir(t, env.uploadDir) {
			if name == "notes.txt" {
				continue
			}
			if !strings.HasPrefix(name, "notes_") || !strings.HasSuffix(name, ".txt") {
				t.Errorf("unexpected file %s", name)
				continue
			}
			found = true
			if got := readFile(t, filepath.Join(env.uploadDir, name)); got != "hello" {
				t.Errorf("expected old content 'hello' in %s, got %q", name, got)
			}
		}
		if !found {
			t.Error("expected a timestamped copy of the first upload")
		}
	})

	t.Run("escapes link", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "", []UploadFile{formFile("my notes#1.txt", "x")}, testBaseURL)
		if err != nil {
			t.Fatal(err)
		}
		if result.URL != "http://example.test/uploads/my%20notes%231.txt" {
			t.Errorf("unexpected url %s", result.URL)
		}
	})

	t.Run("open failure is returned", func(t *testing.T) {
		env := newTestEnv(t)
		boom := errors.New("boom")
		broken := UploadFile{Name: "a.txt", Open: func() (io.ReadCloser, error) { return nil, boom }}

		_, err := env.svc.ProcessUpload(context.Background(), "", []UploadFile{broken}, testBaseURL)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped open error, got %v", err)
		}
	})
}

// --- Degenerate submissions ---

func TestProcessUpload_NoFile(t *testing.T) {
	tests := []struct {
		name  string
		files []UploadFile
	}{
		{"no entries", nil},
		{"single empty entry", []UploadFile{emptyFormFile()}},
		{"several empty entries", []UploadFile{emptyFormFile(), emptyFormFile()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			result, err := env.svc.ProcessUpload(context.Background(), "report", tt.files, testBaseURL)
			if !errors.Is(err, ErrNoFile) {
				t.Fatalf("expected ErrNoFile, got %v", err)
			}
			if result != nil {
				t.Error("expected nil result")
			}
			if names := listDir(t, env.uploadDir); len(names) != 0 {
				t.Errorf("expected nothing stored, got %v", names)
			}
			if names := listDir(t, env.archiveDir); len(names) != 0 {
				t.Errorf("expected no archive, got %v", names)
			}
		})
	}
}

// --- Archive ---

func TestProcessUpload_Archive(t *testing.T) {
	t.Run("bundles files under base name", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "bundle", []UploadFile{
			formFile("a.txt", "alpha"),
			formFile("b.txt", "bravo"),
		}, testBaseURL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Kind != KindArchive {
			t.Errorf("expected kind %s, got %s", KindArchive, result.Kind)
		}
		if result.Filename != "bundle.zip" {
			t.Errorf("expected bundle.zip, got %s", result.Filename)
		}
		if result.URL != "http://example.test/zips/bundle.zip" {
			t.Errorf("unexpected url %s", result.URL)
		}
		if len(result.Files) != 2 || result.Files[0] != "a.txt" || result.Files[1] != "b.txt" {
			t.Errorf("unexpected members %v", result.Files)
		}

		contents := readZip(t, filepath.Join(env.archiveDir, "bundle.zip"))
		if len(contents) != 2 || contents["a.txt"] != "alpha" || contents["b.txt"] != "bravo" {
			t.Errorf("unexpected archive contents %v", contents)
		}

		// Members are stored individually under their original names too.
		if got := readFile(t, filepath.Join(env.uploadDir, "a.txt")); got != "alpha" {
			t.Errorf("expected a.txt stored, got %q", got)
		}
		if got := readFile(t, filepath.Join(env.uploadDir, "b.txt")); got != "bravo" {
			t.Errorf("expected b.txt stored, got %q", got)
		}
		if _, err := os.Stat(filepath.Join(env.uploadDir, "bundle.txt")); !os.IsNotExist(err) {
			t.Error("base name must not be applied to archive members")
		}
	})

	t.Run("default archive name", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "", []UploadFile{
			formFile("a.txt", "alpha"),
			formFile("b.txt", "bravo"),
		}, testBaseURL)
		if err != nil {
			t.Fatal(err)
		}
		if result.Filename != "uploaded_files.zip" {
			t.Errorf("expected uploaded_files.zip, got %s", result.Filename)
		}
	})

	t.Run("skips empty entries", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "bundle", []UploadFile{
			formFile("a.txt", "alpha"),
			emptyFormFile(),
			formFile("c.txt", "charlie"),
		}, testBaseURL)
		if err != nil {
			t.Fatal(err)
		}

		contents := readZip(t, filepath.Join(env.archiveDir, result.Filename))
		if len(contents) != 2 || contents["a.txt"] != "alpha" || contents["c.txt"] != "charlie" {
			t.Errorf("unexpected archive contents %v", contents)
		}
		if names := listDir(t, env.uploadDir); len(names) != 2 {
			t.Errorf("expected 2 stored files, got %v", names)
		}
	})

	t.Run("one named entry among several still bundles", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "", []UploadFile{
			emptyFormFile(),
			formFile("only.txt", "solo"),
		}, testBaseURL)
		if err != nil {
			t.Fatal(err)
		}
		if result.Kind != KindArchive {
			t.Errorf("expected kind %s, got %s", KindArchive, result.Kind)
		}
		contents := readZip(t, filepath.Join(env.archiveDir, result.Filename))
		if len(contents) != 1 || contents["only.txt"] != "solo" {
			t.Errorf("unexpected archive contents %v", contents)
		}
	})

	t.Run("duplicate names keep both versions", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.svc.ProcessUpload(context.Background(), "dupes", []UploadFile{
			formFile("same.txt", "first"),
			formFile("same.txt", "second"),
		}, testBaseURL)
		if err != nil {
			t.Fatal(err)
		}

		if len(result.Files) != 2 {
			t.Errorf("expected two archive entries, got %v", result.Files)
		}
		if got := readFile(t, filepath.Join(env.uploadDir, "same.txt")); got != "second" {
			t.Errorf("expected live content 'second', got %q", got)
		}
		if names := listDir(t, env.uploadDir); len(names) != 2 {
			t.Errorf("expected live + superseded copy, got %v", names)
		}
	})

	t.Run("existing archive is moved aside", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		files := []UploadFile{formFile("a.txt", "alpha"), formFile("b.txt", "bravo")}

		if _, err := env.svc.ProcessUpload(ctx, "bundle", files, testBaseURL); err != nil {
			t.Fatal(err)
		}
		if _, err := env.svc.ProcessUpload(ctx, "bundle", files, testBaseURL); err != nil {
			t.Fatal(err)
		}

		names := listDir(t, env.archiveDir)
		if len(names) != 2 {
			t.Fatalf("expected live + superseded archive, got %v", names)
		}
		for _, name := range names {
			if name != "bundle.zip" && !strings.HasPrefix(name, "bundle_") {
				t.Errorf("unexpected archive %s", name)
			}
		}
	})

	t.Run("failed member aborts archive", func(t *testing.T) {
		env := newTestEnv(t)
		boom := errors.New("boom")

		_, err := env.svc.ProcessUpload(context.Background(), "bundle", []UploadFile{
			formFile("a.txt", "alpha"),
			{Name: "b.txt", Open: func() (io.ReadCloser, error) { return nil, boom }},
		}, testBaseURL)
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped error, got %v", err)
		}
		if names := listDir(t, env.archiveDir); len(names) != 0 {
			t.Errorf("expected no archive, got %v", names)
		}
	})
}

func TestPublicBaseURL(t *testing.T) {
	t.Run("derived from request", func(t *testing.T) {
		svc := NewUploadService(nil, nil, &config.Config{})
		if got := svc.PublicBaseURL("http", "10.0.0.5:8113"); got != "http://10.0.0.5:8113" {
			t.Errorf("unexpected base url %s", got)
		}
	})

	t.Run("configured value wins", func(t *testing.T) {
		svc := NewUploadService(nil, nil, &config.Config{BaseURL: "https://drop.example.com"})
		if got := svc.PublicBaseURL("http", "10.0.0.5:8113"); got != "https://drop.example.com" {
			t.Errorf("unexpected base url %s", got)
		}
	})
}
