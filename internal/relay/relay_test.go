package relay

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/subscription"
	submock "github.com/MrWong99/radiobridge/internal/subscription/mock"
	"github.com/MrWong99/radiobridge/pkg/audio"
	audiomock "github.com/MrWong99/radiobridge/pkg/audio/mock"
)

// ─── fakes ────────────────────────────────────────────────────────────────────

type fakeStream struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	closes atomic.Int32
}

func newFakeStream() *fakeStream {
	r, w := io.Pipe()
	return &fakeStream{r: r, w: w}
}

func (f *fakeStream) Read(b []byte) (int, error) { return f.r.Read(b) }

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.w.Close()
	return f.r.Close()
}

type fakeDecoder struct {
	mu      sync.Mutex
	stream  *fakeStream
	err     error
	openURL []string
}

func (d *fakeDecoder) Open(_ context.Context, url string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openURL = append(d.openURL, url)
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakePrimer struct {
	calls atomic.Int32
}

func (p *fakePrimer) Prime(context.Context, catalog.Channel, subscription.Sink) error {
	p.calls.Add(1)
	return nil
}

type fixture struct {
	manager  *Manager
	registry *subscription.Registry
	conn     *audiomock.Connection
	platform *audiomock.Platform
	decoder  *fakeDecoder
	stream   *fakeStream
	primer   *fakePrimer
	sink     *submock.Sink
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	conn := audiomock.NewConnection()
	conn.SetOccupants(2)
	f := &fixture{
		registry: subscription.NewRegistry(),
		conn:     conn,
		platform: &audiomock.Platform{ConnectResult: conn},
		stream:   newFakeStream(),
		primer:   &fakePrimer{},
		sink:     &submock.Sink{},
	}
	f.decoder = &fakeDecoder{stream: f.stream}
	opts = append([]Option{WithIdleCheckInterval(time.Hour)}, opts...)
	f.manager = NewManager(f.platform, f.decoder, f.registry, f.primer, opts...)
	t.Cleanup(func() { _ = f.manager.Shutdown(context.Background()) })
	return f
}

func (f *fixture) request() Request {
	return Request{
		GuildID:        "guild-1",
		VoiceChannelID: "voice-1",
		DestinationID:  "text-1",
		Channel:        catalog.Jazz,
		Sink:           f.sink,
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end (state %s)", s.State())
	}
}

// ─── tests ────────────────────────────────────────────────────────────────────

func TestStart_StreamsIntoVoice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateStreaming {
		t.Errorf("state = %s, want streaming", s.State())
	}
	if got := f.decoder.openURL; !slices.Equal(got, []string{"https://icecast.radiofrance.fr/fipjazz-midfi.mp3"}) {
		t.Errorf("decoder opened %v", got)
	}
	if calls := f.platform.ConnectCalls; len(calls) != 1 || calls[0] != [2]string{"guild-1", "voice-1"} {
		t.Errorf("Connect calls = %v", calls)
	}
	if f.primer.calls.Load() != 1 {
		t.Errorf("Prime calls = %d, want 1", f.primer.calls.Load())
	}
	if sub, ok := f.registry.Lookup("text-1"); !ok || sub.Channel != catalog.Jazz {
		t.Errorf("registry entry = %+v, %v", sub, ok)
	}

	go f.stream.w.Write(make([]byte, 2*audio.FrameBytes))
	deadline := time.After(2 * time.Second)
	for f.conn.BytesReceived() < 2*audio.FrameBytes {
		select {
		case <-f.conn.Received():
		case <-deadline:
			t.Fatalf("voice received %d bytes, want %d", f.conn.BytesReceived(), 2*audio.FrameBytes)
		}
	}
	for _, fr := range f.conn.Frames() {
		if len(fr.Data) != audio.FrameBytes || fr.SampleRate != audio.SampleRate || fr.Channels != audio.Channels {
			t.Errorf("unexpected frame: %d bytes %d Hz %d ch", len(fr.Data), fr.SampleRate, fr.Channels)
		}
	}
}

func TestStart_RejectsSecondSessionInGuild(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.manager.Start(context.Background(), f.request()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	req := f.request()
	req.Channel = catalog.Rock
	if _, err := f.manager.Start(context.Background(), req); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start err = %v, want ErrSessionActive", err)
	}
	if f.platform.CallCountConnect() != 1 {
		t.Error("rejected request must not join voice")
	}
}

func TestStart_NotInVoice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.request()
	req.VoiceChannelID = ""
	if _, err := f.manager.Start(context.Background(), req); !errors.Is(err, ErrNotInVoice) {
		t.Fatalf("err = %v, want ErrNotInVoice", err)
	}
}

func TestStart_VoiceConnectFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.platform.ConnectError = errors.New("missing permissions")

	_, err := f.manager.Start(context.Background(), f.request())
	if !errors.Is(err, ErrVoiceConnect) {
		t.Fatalf("err = %v, want ErrVoiceConnect", err)
	}
	if f.manager.Len() != 0 {
		t.Error("failed session must free its slot")
	}
	if f.registry.Len() != 0 {
		t.Error("failed session must not stay subscribed")
	}
	if len(f.decoder.openURL) != 0 {
		t.Error("decoder must not start without voice")
	}
}

func TestStart_DecoderFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.decoder.err = errors.New("exec: \"ffmpeg\": not found")

	_, err := f.manager.Start(context.Background(), f.request())
	if !errors.Is(err, ErrStreamRelay) {
		t.Fatalf("err = %v, want ErrStreamRelay", err)
	}
	if f.conn.Disconnects() != 1 {
		t.Errorf("voice disconnects = %d, want 1", f.conn.Disconnects())
	}
	if f.manager.Len() != 0 || f.registry.Len() != 0 {
		t.Error("failed session must release its slot and subscription")
	}
}

func TestStop_ConcurrentIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() { s.Stop(ReasonUser) })
	}
	wg.Go(func() { _ = f.manager.Stop("guild-1") })
	wg.Wait()
	waitDone(t, s)

	if got := f.conn.Disconnects(); got != 1 {
		t.Errorf("voice disconnects = %d, want 1", got)
	}
	if got := f.stream.closes.Load(); got != 1 {
		t.Errorf("decoder closes = %d, want 1", got)
	}
	if s.State() != StateEnded {
		t.Errorf("state = %s, want ended", s.State())
	}
	if f.registry.Len() != 0 || f.manager.Len() != 0 {
		t.Error("stopped session must release its subscription and slot")
	}
	if err := f.manager.Stop("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Stop after end = %v, want ErrNoSession", err)
	}
}

func TestStop_LeavesNewerSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	newer := &submock.Sink{}
	f.registry.Subscribe("text-1", catalog.Rock, newer)
	s.Stop(ReasonUser)

	sub, ok := f.registry.Lookup("text-1")
	if !ok || sub.Sink != newer {
		t.Errorf("newer subscription was removed: %+v, %v", sub, ok)
	}
}

func TestWatchdog_StopsOnNthCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithIdleCheckInterval(10*time.Millisecond))
	f.conn.OccupantsSequence = []int{3, 2, 1, 5}

	s, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, s)

	if got := f.conn.OccupantChecks(); got != 3 {
		t.Errorf("occupant checks = %d, want 3", got)
	}
	if s.Reason() != ReasonIdle {
		t.Errorf("reason = %q, want %q", s.Reason(), ReasonIdle)
	}
	if f.sink.NoticeCount() != 1 || f.sink.Notices[0] != IdleMessage {
		t.Errorf("notices = %v, want [%q]", f.sink.Notices, IdleMessage)
	}
	if f.conn.Disconnects() != 1 {
		t.Errorf("voice disconnects = %d, want 1", f.conn.Disconnects())
	}
}

func TestWatchdog_UnknownCountKeepsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithIdleCheckInterval(10*time.Millisecond))
	f.conn.OccupantsSequence = []int{audio.UnknownOccupants, audio.UnknownOccupants, 1}

	s, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, s)

	if got := f.conn.OccupantChecks(); got != 3 {
		t.Errorf("occupant checks = %d, want 3", got)
	}
	if s.Reason() != ReasonIdle {
		t.Errorf("reason = %q, want %q", s.Reason(), ReasonIdle)
	}
}

func TestRelay_StreamEndEndsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.stream.w.Close()
	waitDone(t, s)

	if s.Reason() != ReasonStreamEnded {
		t.Errorf("reason = %q, want %q", s.Reason(), ReasonStreamEnded)
	}
	if f.sink.NoticeCount() != 1 {
		t.Errorf("notices = %d, want 1", f.sink.NoticeCount())
	}
}

func TestRelay_DecoderCrashIsStreamError(t *testing.T) {
	t.Parallel()
	requireShell(t)

	dec, err := NewCommandDecoder(`sh -c 'echo boom >&2; exit 3' {url}`)
	if err != nil {
		t.Fatalf("NewCommandDecoder: %v", err)
	}
	f := newFixture(t)
	m := NewManager(f.platform, dec, f.registry, f.primer, WithIdleCheckInterval(time.Hour))

	s, err := m.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, s)

	if s.Reason() != ReasonStreamError {
		t.Errorf("reason = %q, want %q", s.Reason(), ReasonStreamError)
	}
	if f.sink.NoticeCount() != 1 || f.sink.Notices[0] != StreamLostMessage {
		t.Errorf("notices = %v, want [%q]", f.sink.Notices, StreamLostMessage)
	}
	if m.Len() != 0 || f.registry.Len() != 0 {
		t.Error("crashed session must release its slot and subscription")
	}
}

// stallingDecoder blocks in Open until the session cancels it.
type stallingDecoder struct {
	opened chan struct{}
}

func (d *stallingDecoder) Open(ctx context.Context, _ string) (io.ReadCloser, error) {
	close(d.opened)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStart_StopWhileDecoderOpens(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dec := &stallingDecoder{opened: make(chan struct{})}
	m := NewManager(f.platform, dec, f.registry, f.primer, WithIdleCheckInterval(time.Hour))

	type result struct {
		s   *Session
		err error
	}
	started := make(chan result, 1)
	go func() {
		s, err := m.Start(context.Background(), f.request())
		started <- result{s, err}
	}()

	select {
	case <-dec.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("decoder was never opened")
	}
	if err := m.Stop("guild-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var res result
	select {
	case res = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if res.err != nil {
		t.Fatalf("Start err = %v, want nil after a user stop", res.err)
	}
	if res.s.Reason() != ReasonUser {
		t.Errorf("reason = %q, want %q", res.s.Reason(), ReasonUser)
	}
	if f.sink.NoticeCount() != 0 {
		t.Errorf("notices = %v, want none", f.sink.Notices)
	}
}

func TestShutdown_StopsAllSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s1, err := f.manager.Start(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn2 := audiomock.NewConnection()
	stream2 := newFakeStream()
	f.platform.ConnectFunc = func(context.Context, string, string) (audio.Connection, error) { return conn2, nil }
	f.decoder.mu.Lock()
	f.decoder.stream = stream2
	f.decoder.mu.Unlock()

	req := f.request()
	req.GuildID, req.DestinationID = "guild-2", "text-2"
	s2, err := f.manager.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start guild-2: %v", err)
	}

	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, s := range []*Session{s1, s2} {
		if s.State() != StateEnded || s.Reason() != ReasonShutdown {
			t.Errorf("%s: state=%s reason=%q", s.GuildID(), s.State(), s.Reason())
		}
	}
	if f.manager.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.manager.Len())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateStarting:  "starting",
		StateStreaming: "streaming",
		StateStopping:  "stopping",
		StateEnded:     "ended",
		State(42):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
