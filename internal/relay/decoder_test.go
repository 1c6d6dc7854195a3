package relay

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestNewCommandDecoder_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{name: "default", command: DefaultDecoderCommand},
		{name: "quoted placeholder", command: `sh -c 'cat "$0"' {url}`},
		{name: "empty", command: "", wantErr: true},
		{name: "no placeholder", command: "ffmpeg -i input.mp3 pipe:1", wantErr: true},
		{name: "placeholder as binary", command: "{url} -x", wantErr: true},
		{name: "unbalanced quote", command: "sh -c 'cat {url}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewCommandDecoder(tt.command)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCommandDecoder(%q) err = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
		})
	}
}

func TestCommandDecoder_ReadsStdout(t *testing.T) {
	t.Parallel()
	requireShell(t)

	path := filepath.Join(t.TempDir(), "pcm.raw")
	want := strings.Repeat("pcm!", 2000)
	if err := os.WriteFile(path, []byte(want), 0o600); err != nil {
		t.Fatal(err)
	}

	d, err := NewCommandDecoder("cat {url}")
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}
	stream, err := d.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("read %d bytes, want %d", len(got), len(want))
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestCommandDecoder_MissingBinary(t *testing.T) {
	t.Parallel()

	d, err := NewCommandDecoder("radiobridge-no-such-decoder {url}")
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}
	if _, err := d.Open(context.Background(), "http://example.invalid/stream"); !errors.Is(err, ErrStreamRelay) {
		t.Fatalf("Open err = %v, want ErrStreamRelay", err)
	}
}

func TestCommandDecoder_FailureCarriesStderr(t *testing.T) {
	t.Parallel()
	requireShell(t)

	d, err := NewCommandDecoder(`sh -c 'echo unsupported codec >&2; exit 3' {url}`)
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}
	stream, err := d.Open(context.Background(), "http://example.invalid/stream")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = io.ReadAll(stream)
	if !errors.Is(err, ErrStreamRelay) {
		t.Fatalf("ReadAll err = %v, want ErrStreamRelay", err)
	}
	if !strings.Contains(err.Error(), "unsupported codec") {
		t.Errorf("ReadAll err = %q, want stderr tail", err)
	}
	if again := stream.Close(); again != err {
		t.Errorf("Close = %v, want cached %v", again, err)
	}
}

func TestCommandDecoder_CleanExitIsEOF(t *testing.T) {
	t.Parallel()
	requireShell(t)

	d, err := NewCommandDecoder(`sh -c 'printf pcm; exit 0' {url}`)
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}
	stream, err := d.Open(context.Background(), "http://example.invalid/stream")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(stream)
	if err != nil || string(got) != "pcm" {
		t.Fatalf("ReadAll = %q, %v; want \"pcm\", nil", got, err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestCommandDecoder_CloseKillsRunningProcess(t *testing.T) {
	t.Parallel()
	requireShell(t)

	d, err := NewCommandDecoder(`sh -c 'exec sleep 30' {url}`)
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}
	stream, err := d.Open(context.Background(), "http://example.invalid/stream")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	readDone := make(chan error, 1)
	go func() {
		_, err := stream.Read(make([]byte, 16))
		readDone <- err
	}()

	start := time.Now()
	if err := stream.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Close took %v", elapsed)
	}
	select {
	case err := <-readDone:
		if !errors.Is(err, io.EOF) {
			t.Errorf("pending Read err = %v, want EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending Read was not unblocked by Close")
	}
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	t.Parallel()

	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	if got := b.String(); got != "456789ab" {
		t.Errorf("tail = %q, want %q", got, "456789ab")
	}
}
