package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/phuslu/log"

	"docchat/internal/adapter/prompt"
	"docchat/internal/domain"
	"docchat/internal/port"
)

type fixedSettings struct {
	temperature float64
	topP        float64
	instruction string
}

func (s fixedSettings) GenerationParams() (float64, float64, error) {
	return s.temperature, s.topP, nil
}

func (s fixedSettings) SystemInstruction() (string, error) {
	return s.instruction, nil
}

func (s fixedSettings) ChunkingParams() (int, int, error) {
	return 512, 50, nil
}

// scriptedModel replays a fixed sequence of stream chunks and records how it
// is used.
type scriptedModel struct {
	chunks []string
	full   string
	err    error

	mu         sync.Mutex
	active     int
	maxActive  int
	streamGate chan struct{}
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Complete(_ context.Context, _ string, _ port.SamplingParams) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.full, nil
}

func (m *scriptedModel) Stream(_ context.Context, _ string, _ port.SamplingParams, emit func(string) error) error {
	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.streamGate != nil {
		<-m.streamGate
	}
	if m.err != nil {
		return m.err
	}
	for _, chunk := range m.chunks {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

type immediateLoader struct {
	model port.Model
	err   error
}

func (l immediateLoader) Load(context.Context) (port.Model, error) {
	return l.model, l.err
}

type gatedLoader struct {
	model port.Model
	gate  chan struct{}
}

func (l gatedLoader) Load(context.Context) (port.Model, error) {
	<-l.gate
	return l.model, nil
}

func testLogger() log.Logger {
	return log.Logger{Writer: log.IOWriter{Writer: io.Discard}}
}

func newTestClient(t *testing.T, loader port.ModelLoader, cfg Config) *Client {
	t.Helper()
	if cfg.StopTokens == nil {
		cfg.StopTokens = []string{"</s>", "[/INST]", "User:", "Query:"}
	}
	settings := fixedSettings{temperature: 0.7, topP: 1.0, instruction: "You are a helpful assistant."}
	return New(loader, settings, prompt.NewBuilder(3000), cfg, testLogger())
}

func collect(t *testing.T, out <-chan string, errc <-chan error) (string, []string, error) {
	t.Helper()
	var fragments []string
	var b strings.Builder
	for f := range out {
		fragments = append(fragments, f)
		b.WriteString(f)
	}
	return b.String(), fragments, <-errc
}

func TestGenerateStreamConcatenatesFragments(t *testing.T) {
	model := &scriptedModel{chunks: []string{"The VPN ", "requires ", "an updated client."}}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	out, errc := client.GenerateStream(context.Background(), "vpn setup", "Install the VPN client from the portal.")
	text, fragments, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "The VPN requires an updated client." {
		t.Fatalf("unexpected text %q", text)
	}
	if len(fragments) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(fragments))
	}
	if client.Invocations() != 1 {
		t.Fatalf("expected 1 invocation, got %d", client.Invocations())
	}
}

func TestGenerateStreamCacheReplaysWithoutInvocation(t *testing.T) {
	model := &scriptedModel{chunks: []string{"Reset your ", "password via ", "the self-service portal."}}
	client := newTestClient(t, immediateLoader{model: model}, Config{ResponseTTL: time.Hour})

	out, errc := client.GenerateStream(context.Background(), "password reset", "ctx")
	first, firstFragments, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, errc = client.GenerateStream(context.Background(), "password reset", "ctx")
	second, secondFragments, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatalf("cached replay differs: %q vs %q", first, second)
	}
	if len(firstFragments) != len(secondFragments) {
		t.Fatalf("fragment counts differ: %d vs %d", len(firstFragments), len(secondFragments))
	}
	if client.Invocations() != 1 {
		t.Fatalf("cache hit should not invoke the model, got %d invocations", client.Invocations())
	}
}

func TestGenerateStreamCacheExpires(t *testing.T) {
	model := &scriptedModel{chunks: []string{"answer"}}
	client := newTestClient(t, immediateLoader{model: model}, Config{ResponseTTL: 20 * time.Millisecond})

	out, errc := client.GenerateStream(context.Background(), "q", "c")
	if _, _, err := collect(t, out, errc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	out, errc = client.GenerateStream(context.Background(), "q", "c")
	if _, _, err := collect(t, out, errc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Invocations() != 2 {
		t.Fatalf("expired entry should recompute, got %d invocations", client.Invocations())
	}
}

func TestCacheKeyVariesWithQueryAndContext(t *testing.T) {
	model := &scriptedModel{chunks: []string{"answer"}}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	out, errc := client.GenerateStream(context.Background(), "q1", "ctx")
	collect(t, out, errc)
	out, errc = client.GenerateStream(context.Background(), "q2", "ctx")
	collect(t, out, errc)
	out, errc = client.GenerateStream(context.Background(), "q1", "other ctx")
	collect(t, out, errc)

	if client.Invocations() != 3 {
		t.Fatalf("distinct requests must not share cache entries, got %d invocations", client.Invocations())
	}
}

func TestStopTokenSplitAcrossChunks(t *testing.T) {
	model := &scriptedModel{chunks: []string{"Restart the router.", "</", "s> trailing garbage"}}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	out, errc := client.GenerateStream(context.Background(), "router", "ctx")
	text, _, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Restart the router." {
		t.Fatalf("expected output trimmed at stop token, got %q", text)
	}
}

func TestMultibyteRuneSplitAcrossChunks(t *testing.T) {
	// "é" is 0xC3 0xA9; the model tears it across two chunks.
	model := &scriptedModel{chunks: []string{"caf\xc3", "\xa9 closed"}}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	out, errc := client.GenerateStream(context.Background(), "cafe", "ctx")
	var fragments []string
	for f := range out {
		fragments = append(fragments, f)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var b strings.Builder
	for _, f := range fragments {
		if !utf8.ValidString(f) {
			t.Fatalf("fragment %q is not valid UTF-8", f)
		}
		b.WriteString(f)
	}
	if b.String() != "café closed" {
		t.Fatalf("unexpected text %q", b.String())
	}
}

func TestFallbackWhenLoaderFails(t *testing.T) {
	client := newTestClient(t, immediateLoader{err: errors.New("no model artifact")}, Config{LoadTimeout: time.Second})

	deadline := time.After(2 * time.Second)
	for client.State() != StateFallback {
		select {
		case <-deadline:
			t.Fatal("client never entered fallback state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	out, errc := client.GenerateStream(context.Background(), "printer offline", "Check the spooler service.")
	first, _, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if first == "" {
		t.Fatal("fallback response is empty")
	}
	if !strings.Contains(first, "printer offline") {
		t.Fatalf("fallback should reference the query, got %q", first)
	}
	if !strings.Contains(first, "Check the spooler service.") {
		t.Fatalf("fallback should include the retrieved context, got %q", first)
	}

	out, errc = client.GenerateStream(context.Background(), "printer offline", "Check the spooler service.")
	second, _, _ := collect(t, out, errc)
	if first != second {
		t.Fatal("fallback output is not deterministic")
	}
	if client.Invocations() != 0 {
		t.Fatalf("fallback must not invoke the model, got %d invocations", client.Invocations())
	}
}

func TestSlowLoadFallsBackWithoutCaching(t *testing.T) {
	gate := make(chan struct{})
	model := &scriptedModel{chunks: []string{"real answer"}}
	client := newTestClient(t, gatedLoader{model: model, gate: gate}, Config{LoadTimeout: 20 * time.Millisecond})

	out, errc := client.GenerateStream(context.Background(), "q", "c")
	text, _, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text == "" || strings.Contains(text, "real answer") {
		t.Fatalf("expected fallback while loading, got %q", text)
	}

	close(gate)
	<-client.ready

	out, errc = client.GenerateStream(context.Background(), "q", "c")
	text, _, err = collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "real answer" {
		t.Fatalf("loading-time fallback must not be cached, got %q", text)
	}
}

func TestGenerateStreamModelFailureReportsError(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection reset")}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	out, errc := client.GenerateStream(context.Background(), "q", "c")
	_, _, err := collect(t, out, errc)

	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}

	// The failed attempt must not poison the cache.
	model.err = nil
	model.chunks = []string{"recovered"}
	out, errc = client.GenerateStream(context.Background(), "q", "c")
	text, _, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("expected fresh generation after failure, got %q", text)
	}
}

func TestConcurrentStreamsAreSerialized(t *testing.T) {
	model := &scriptedModel{chunks: []string{"serial answer"}}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, errc := client.GenerateStream(context.Background(), "query", strings.Repeat("x", n+1))
			var b strings.Builder
			for f := range out {
				b.WriteString(f)
			}
			if err := <-errc; err != nil || b.String() != "serial answer" {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatal("a concurrent stream failed")
	}
	if model.maxActive > 1 {
		t.Fatalf("model invoked concurrently, max active %d", model.maxActive)
	}
}

func TestGenerateOneShot(t *testing.T) {
	model := &scriptedModel{full: "Use the service desk portal.</s> ignored"}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	text, err := client.Generate(context.Background(), "how do I open a ticket", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Use the service desk portal." {
		t.Fatalf("expected stop-trimmed text, got %q", text)
	}

	again, err := client.Generate(context.Background(), "how do I open a ticket", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != text {
		t.Fatal("cached one-shot result differs")
	}
	if client.Invocations() != 1 {
		t.Fatalf("expected 1 invocation, got %d", client.Invocations())
	}
}

func TestAbandonedConsumerStillCaches(t *testing.T) {
	model := &scriptedModel{chunks: []string{"part one ", "part two ", "part three"}}
	client := newTestClient(t, immediateLoader{model: model}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	out, errc := client.GenerateStream(ctx, "q", "c")
	<-out
	cancel()
	for range out {
	}
	<-errc

	// The generation ran to completion, so a later identical request is a
	// cache hit.
	out, errc = client.GenerateStream(context.Background(), "q", "c")
	text, _, err := collect(t, out, errc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "part one part two part three" {
		t.Fatalf("unexpected text %q", text)
	}
	if client.Invocations() != 1 {
		t.Fatalf("expected cached replay, got %d invocations", client.Invocations())
	}
}
