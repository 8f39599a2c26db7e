package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruyvieira/openai-whisper/internal/audio"
	"github.com/ruyvieira/openai-whisper/internal/batch"
	"github.com/ruyvieira/openai-whisper/internal/config"
	"github.com/ruyvieira/openai-whisper/internal/failure"
	"github.com/ruyvieira/openai-whisper/internal/metrics"
	"github.com/ruyvieira/openai-whisper/internal/storage"
	"github.com/ruyvieira/openai-whisper/internal/transcribe"
)

type recordingService struct {
	failOn int // call number that fails, -1 for never

	mu    sync.Mutex
	calls []transcribe.Request
}

func (s *recordingService) Transcribe(_ context.Context, req transcribe.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.calls)
	req.Audio = append([]byte(nil), req.Audio...)
	s.calls = append(s.calls, req)
	if n == s.failOn {
		return "", failure.Wrap(failure.ErrService, "openai (status 500)", errors.New("server error"))
	}
	return string(rune('a' + n)), nil
}

// writeWAV writes ms milliseconds of 16 kHz mono silence.
func writeWAV(t *testing.T, dir string, ms int) string {
	t.Helper()
	tl, err := audio.NewTimeline(make([]int16, ms*16), 16000, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, err := tl.Encode(context.Background(), audio.FormatWAV)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	path := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(path, p.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestApp(svc batch.Service, cfg *config.Config) *app {
	if cfg == nil {
		cfg = &config.Config{Passthrough: true, MinSegment: 100 * time.Millisecond, Concurrency: 1}
	}
	log := zerolog.Nop()
	return &app{
		cfg:     cfg,
		log:     log,
		svc:     svc,
		store:   storage.NewRouter(config.S3Config{}, log),
		codec:   audio.NewCodec("ffmpeg", false),
		metrics: metrics.New(),
	}
}

func TestRun_BatchedWritesOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeWAV(t, dir, 2500)
	out := filepath.Join(dir, "out.txt")
	svc := &recordingService{failOn: -1}

	opts := batch.Options{BatchSize: time.Second, Format: audio.FormatWAV, MinSegment: 100 * time.Millisecond}
	if err := newTestApp(svc, nil).run(context.Background(), in, out, opts); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a\nb\nc\n" {
		t.Errorf("output = %q, want %q", got, "a\nb\nc\n")
	}
	if len(svc.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(svc.calls))
	}
}

func TestRun_FailureLeavesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeWAV(t, dir, 3000)
	out := filepath.Join(dir, "out.txt")
	os.WriteFile(out, []byte("previous transcript\n"), 0o644)
	svc := &recordingService{failOn: 1}

	opts := batch.Options{BatchSize: time.Second, Format: audio.FormatWAV}
	err := newTestApp(svc, nil).run(context.Background(), in, out, opts)
	if !errors.Is(err, failure.ErrService) {
		t.Fatalf("err = %v, want ErrService", err)
	}
	if code := failure.ExitCode(err); code != failure.ExitService {
		t.Errorf("ExitCode = %d, want %d", code, failure.ExitService)
	}
	if len(svc.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(svc.calls))
	}

	got, _ := os.ReadFile(out)
	if string(got) != "previous transcript\n" {
		t.Errorf("output = %q, want it untouched", got)
	}
}

func TestRun_FailureWritesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeWAV(t, dir, 1000)
	out := filepath.Join(dir, "out.txt")

	err := newTestApp(&recordingService{failOn: 0}, nil).
		run(context.Background(), in, out, batch.Options{Offset: 0, Limit: time.Second, Format: audio.FormatWAV})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output exists after failed run (stat err = %v)", err)
	}
}

func TestRun_PassthroughUploadsInputUnmodified(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "meeting.m4a")
	os.WriteFile(in, []byte("not really m4a"), 0o644)
	out := filepath.Join(dir, "out.txt")
	svc := &recordingService{failOn: -1}

	if err := newTestApp(svc, nil).run(context.Background(), in, out, batch.Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(svc.calls))
	}
	if c := svc.calls[0]; c.Filename != "meeting.m4a" || string(c.Audio) != "not really m4a" {
		t.Errorf("request = %q %q, want the raw input", c.Filename, c.Audio)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "a" {
		t.Errorf("output = %q, want verbatim %q", got, "a")
	}
}

func TestRun_NoPassthroughReencodes(t *testing.T) {
	dir := t.TempDir()
	in := writeWAV(t, dir, 1000)
	out := filepath.Join(dir, "out.txt")
	svc := &recordingService{failOn: -1}
	cfg := &config.Config{Passthrough: false, Concurrency: 1}

	if err := newTestApp(svc, cfg).run(context.Background(), in, out, batch.Options{Format: audio.FormatWAV}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c := svc.calls[0]; c.Filename != "segment-000.wav" || len(c.Audio) != 44+32000 {
		t.Errorf("request = %s (%d bytes), want a re-encoded segment", c.Filename, len(c.Audio))
	}
}

func TestRun_MissingInputIsIOError(t *testing.T) {
	dir := t.TempDir()
	for _, opts := range []batch.Options{{}, {BatchSize: time.Second}} {
		err := newTestApp(&recordingService{failOn: -1}, nil).
			run(context.Background(), filepath.Join(dir, "missing.wav"), filepath.Join(dir, "out.txt"), opts)
		if !errors.Is(err, failure.ErrIO) {
			t.Errorf("opts %+v: err = %v, want ErrIO", opts, err)
		}
	}
}

func TestRun_OffsetPastEnd(t *testing.T) {
	dir := t.TempDir()
	in := writeWAV(t, dir, 1000)
	svc := &recordingService{failOn: -1}

	err := newTestApp(svc, nil).
		run(context.Background(), in, filepath.Join(dir, "out.txt"), batch.Options{Offset: 5 * time.Second, Format: audio.FormatWAV})
	if code := failure.ExitCode(err); code != failure.ExitConfiguration {
		t.Errorf("ExitCode = %d, want %d (err = %v)", code, failure.ExitConfiguration, err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(svc.calls))
	}
}

func TestRun_MetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	in := writeWAV(t, dir, 2000)
	prom := filepath.Join(dir, "openai_whisper.prom")
	cfg := &config.Config{MinSegment: 100 * time.Millisecond, Concurrency: 1, MetricsTextfile: prom}

	err := newTestApp(&recordingService{failOn: -1}, cfg).
		run(context.Background(), in, filepath.Join(dir, "out.txt"), batch.Options{BatchSize: time.Second, Format: audio.FormatWAV, MinSegment: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`openai_whisper_segments_total{result="ok"} 2`,
		`openai_whisper_segments_total{result="dropped"} 1`,
		"openai_whisper_last_run_success 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("warn", "json", &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["message"] != "shown" {
		t.Errorf("message = %v", entry["message"])
	}
	if id, _ := entry["run_id"].(string); len(id) != 36 {
		t.Errorf("run_id = %v, want a uuid", entry["run_id"])
	}
}

func TestNewLogger_BadLevelDefaultsToInfo(t *testing.T) {
	log := newLogger("loud", "console", &bytes.Buffer{})
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", log.GetLevel())
	}
}

func TestRun_PassthroughEmptyInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.mp3")
	os.WriteFile(in, nil, 0o644)
	svc := &recordingService{failOn: -1}

	err := newTestApp(svc, nil).run(context.Background(), in, filepath.Join(dir, "out.txt"), batch.Options{})
	if code := failure.ExitCode(err); code != failure.ExitConfiguration {
		t.Errorf("ExitCode = %d, want %d (err = %v)", code, failure.ExitConfiguration, err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(svc.calls))
	}
}
