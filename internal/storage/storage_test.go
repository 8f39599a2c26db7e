package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ruyvieira/openai-whisper/internal/config"
	"github.com/ruyvieira/openai-whisper/internal/failure"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		key    string
		remote bool
		name   string
	}{
		{"talk.mp3", "", "talk.mp3", false, "talk.mp3"},
		{"/tmp/out/notes.txt", "", "/tmp/out/notes.txt", false, "notes.txt"},
		{"s3://media/2024/talk.m4a", "media", "2024/talk.m4a", true, "talk.m4a"},
		{"  s3://b/k  ", "b", "k", true, "k"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := ParseLocation(tt.in)
			if err != nil {
				t.Fatalf("ParseLocation: %v", err)
			}
			if loc.Bucket != tt.bucket || loc.Key != tt.key {
				t.Errorf("got %+v, want bucket=%q key=%q", loc, tt.bucket, tt.key)
			}
			if loc.Remote() != tt.remote {
				t.Errorf("Remote() = %v, want %v", loc.Remote(), tt.remote)
			}
			if loc.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", loc.Name(), tt.name)
			}
		})
	}
}

func TestParseLocation_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		if _, err := ParseLocation(in); !errors.Is(err, failure.ErrConfiguration) {
			t.Errorf("ParseLocation(%q) err = %v, want ErrConfiguration", in, err)
		}
	}
}

func TestLocation_String(t *testing.T) {
	loc := Location{Bucket: "media", Key: "a/b.txt"}
	if got := loc.String(); got != "s3://media/a/b.txt" {
		t.Errorf("String() = %q", got)
	}
}

func TestLocalStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	if err := s.Save(ctx, "nested/out.txt", []byte("first")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "nested/out.txt", []byte("second\n")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "nested", "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second\n" {
		t.Errorf("content = %q, want %q", got, "second\n")
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "nested"))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the output (temp files left behind?)", len(entries))
	}

	info, err := os.Stat(filepath.Join(dir, "nested", "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("mode = %o, want 644", perm)
	}
}

func TestLocalStore_Open(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "in.wav"), []byte("RIFF"), 0o644)

	rc, err := NewLocalStore(dir).Open(context.Background(), "in.wav")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "RIFF" {
		t.Errorf("data = %q", data)
	}
}

func TestRouter_Local(t *testing.T) {
	dir := t.TempDir()
	r := NewRouter(config.S3Config{}, zerolog.Nop())
	ctx := context.Background()
	loc := Location{Key: filepath.Join(dir, "out.txt")}

	if err := r.Write(ctx, loc, []byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := r.ReadAll(ctx, loc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello\n" {
		t.Errorf("ReadAll = %q", got)
	}
	if r.client != nil {
		t.Error("s3 client created for a local location")
	}
}

func TestRouter_MissingInputIsIOError(t *testing.T) {
	r := NewRouter(config.S3Config{}, zerolog.Nop())
	_, err := r.ReadAll(context.Background(), Location{Key: filepath.Join(t.TempDir(), "missing.mp3")})
	if !errors.Is(err, failure.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}

func TestRouter_UnwritableOutputIsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	os.WriteFile(blocker, nil, 0o644)

	r := NewRouter(config.S3Config{}, zerolog.Nop())
	err := r.Write(context.Background(), Location{Key: filepath.Join(blocker, "out.txt")}, []byte("x"))
	if !errors.Is(err, failure.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}

// fakeS3 is a path-style object store good enough for PutObject/GetObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestRouter_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	r := NewRouter(config.S3Config{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	}, zerolog.Nop())
	ctx := context.Background()

	out, _ := ParseLocation("s3://transcripts/2024/talk.txt")
	if err := r.Write(ctx, out, []byte("a\nb\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := string(fake.objects["/transcripts/2024/talk.txt"]); got != "a\nb\n" {
		t.Errorf("stored = %q, want %q", got, "a\nb\n")
	}
	if ct := fake.types["/transcripts/2024/talk.txt"]; !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}

	got, err := r.ReadAll(ctx, out)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "a\nb\n" {
		t.Errorf("ReadAll = %q", got)
	}

	missing, _ := ParseLocation("s3://transcripts/none.mp3")
	if _, err := r.ReadAll(ctx, missing); !errors.Is(err, failure.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}
