package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-shellwords"
)

// URLPlaceholder is replaced by the stream URL in the decoder command.
const URLPlaceholder = "{url}"

// DefaultDecoderCommand transcodes any stream ffmpeg understands into raw
// 48 kHz stereo signed 16-bit little-endian PCM on stdout.
const DefaultDecoderCommand = "ffmpeg -hide_banner -loglevel panic -i {url} -ac 2 -f s16le -ar 48000 pipe:1"

// Decoder opens a PCM stream for a remote audio URL.
type Decoder interface {
	// Open starts decoding url. Closing the returned stream releases every
	// resource behind it and unblocks pending reads.
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// CommandDecoder runs an external process per stream and reads PCM from its
// stdout.
type CommandDecoder struct {
	args []string
}

// Compile-time interface assertion.
var _ Decoder = (*CommandDecoder)(nil)

// NewCommandDecoder parses command with shell quoting rules. The command must
// reference [URLPlaceholder] in at least one argument.
func NewCommandDecoder(command string) (*CommandDecoder, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("relay: parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("relay: decoder command is empty")
	}
	if !strings.Contains(strings.Join(args[1:], " "), URLPlaceholder) {
		return nil, fmt.Errorf("relay: decoder command must contain %s", URLPlaceholder)
	}
	return &CommandDecoder{args: args}, nil
}

// Open starts the decoder process for url.
func (d *CommandDecoder) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	args := make([]string, len(d.args)-1)
	for i, a := range d.args[1:] {
		args[i] = strings.ReplaceAll(a, URLPlaceholder, url)
	}

	cmd := exec.CommandContext(ctx, d.args[0], args...)
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: decoder stdout: %w", ErrStreamRelay, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start decoder %q: %w", ErrStreamRelay, d.args[0], err)
	}
	return &process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// process is a running decoder. Close kills it and reaps it exactly once.
//
// When stdout ends, Read reaps the process: a decoder that exited with a
// failure status reports [ErrStreamRelay] instead of io.EOF.
type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (p *process) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	switch {
	case err == nil:
		return n, nil
	case p.closed.Load():
		// Reads racing Close surface as "file already closed".
		return n, io.EOF
	case errors.Is(err, io.EOF):
		if cerr := p.Close(); cerr != nil {
			return n, cerr
		}
		return n, io.EOF
	default:
		return n, fmt.Errorf("%w: read decoder output: %w", ErrStreamRelay, err)
	}
}

func (p *process) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr) && !exitErr.Exited():
			// Killed by us.
		case errors.Is(err, context.Canceled):
		default:
			if tail := p.stderr.String(); tail != "" {
				err = fmt.Errorf("%w: %s", err, tail)
			}
			p.closeErr = fmt.Errorf("%w: decoder exited: %w", ErrStreamRelay, err)
		}
	})
	return p.closeErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(b)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
