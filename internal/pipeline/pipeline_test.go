package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/extract"
	"github.com/joseph-ayodele/ratecon-intake/internal/ocr"
	"github.com/joseph-ayodele/ratecon-intake/internal/render"
)

const scenarioText = "Load #: 482910\nTotal Carrier Pay: $1,500.00\nTotal Miles: 742"

type event struct {
	job   uuid.UUID
	kind  string // status, clear, result, error
	state constants.DocState
	text  string
}

type fakeNotifier struct {
	mu        sync.Mutex
	events    []event
	resultErr error
}

func (f *fakeNotifier) add(e event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fakeNotifier) Status(_ context.Context, job async.Job, state constants.DocState, text string) error {
	f.add(event{job: job.ID, kind: "status", state: state, text: text})
	return nil
}

func (f *fakeNotifier) ClearStatus(_ context.Context, job async.Job) error {
	f.add(event{job: job.ID, kind: "clear"})
	return nil
}

func (f *fakeNotifier) SendResult(_ context.Context, job async.Job, text string, _ entity.Record) error {
	if f.resultErr != nil {
		return f.resultErr
	}
	f.add(event{job: job.ID, kind: "result", text: text})
	return nil
}

func (f *fakeNotifier) SendError(_ context.Context, job async.Job, text string) error {
	f.add(event{job: job.ID, kind: "error", text: text})
	return nil
}

func (f *fakeNotifier) snapshot() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

func (f *fakeNotifier) kinds(job uuid.UUID) []string {
	var out []string
	for _, e := range f.snapshot() {
		if e.job != job {
			continue
		}
		if e.kind == "status" {
			out = append(out, string(e.state))
		} else {
			out = append(out, e.kind)
		}
	}
	return out
}

type memSource struct {
	docs map[string][]byte
}

func (m memSource) Fetch(_ context.Context, ref string) (io.ReadCloser, error) {
	b, ok := m.docs[ref]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	tmpl     string
	tmplErr  error
	consumed []int64
}

func (f *fakeAccounts) Template(context.Context, int64) (string, error) {
	return f.tmpl, f.tmplErr
}

func (f *fakeAccounts) ConsumeUse(_ context.Context, id int64) error {
	f.mu.Lock()
	f.consumed = append(f.consumed, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeAccounts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.consumed)
}

type fakeText struct {
	mu    sync.Mutex
	text  string
	paths []string
}

func (f *fakeText) Acquire(_ context.Context, path string) ocr.Result {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	return ocr.Result{Text: f.text, Pages: 1, Method: ocr.MethodPDFText}
}

type extractorFunc func(ctx context.Context, text string) extract.Report

func (f extractorFunc) ExtractReport(ctx context.Context, text string) extract.Report {
	return f(ctx, text)
}

var pdfBytes = []byte("%PDF-1.4\n% fake document\n")

type harness struct {
	notifier *fakeNotifier
	accounts *fakeAccounts
	text     *fakeText
	orch     *Orchestrator
}

func newHarness(t *testing.T, ex RecordExtractor) *harness {
	t.Helper()
	h := &harness{
		notifier: &fakeNotifier{},
		accounts: &fakeAccounts{},
		text:     &fakeText{text: scenarioText},
	}
	if ex == nil {
		ex = extract.NewService(extract.RegexExtractor{}, nil, extract.DeterministicFirst)
	}
	proc := NewProcessor(nil, h.text, ex, render.NewRenderer(nil))
	src := memSource{docs: map[string][]byte{"doc": pdfBytes, "txt": []byte("hello world")}}
	h.orch = NewOrchestrator(proc, src, h.notifier, h.accounts, Config{PulseEvery: 5 * time.Millisecond, TempDir: t.TempDir()}, nil)
	return h
}

func newJob(ref string) async.Job {
	return async.Job{ID: uuid.New(), UserID: 42, FileRef: ref}
}

func TestHandle_Delivered(t *testing.T) {
	h := newHarness(t, nil)
	job := newJob("doc")

	h.orch.Handle(context.Background(), job)

	assert.Equal(t, []string{
		string(constants.DocStateDownloading),
		string(constants.DocStateExtractingText),
		string(constants.DocStateRendering),
		"result",
		string(constants.DocStateDelivered),
		"clear",
	}, h.notifier.kinds(job.ID))
	assert.Equal(t, 1, h.accounts.count())

	var result string
	for _, e := range h.notifier.snapshot() {
		if e.kind == "result" {
			result = e.text
		}
	}
	assert.Contains(t, result, "<b>Load#</b> 482910")
	assert.Contains(t, result, "<b>RATE:</b> 1,500.00")

	require.Len(t, h.text.paths, 1)
	_, err := os.Stat(h.text.paths[0])
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file must be removed")
}

func TestHandle_FetchFailure(t *testing.T) {
	h := newHarness(t, nil)
	job := newJob("missing")

	h.orch.Handle(context.Background(), job)

	kinds := h.notifier.kinds(job.ID)
	assert.Equal(t, []string{string(constants.DocStateDownloading), "error", string(constants.DocStateFailed), "clear"}, kinds)
	assert.Equal(t, 0, h.accounts.count())

	events := h.notifier.snapshot()
	assert.True(t, strings.HasPrefix(events[1].text, "🙄 Ugh, even I can't fix this error: fetch document"))
}

func TestHandle_NotAPDF(t *testing.T) {
	h := newHarness(t, nil)
	dir := h.orch.cfg.TempDir
	job := newJob("txt")

	h.orch.Handle(context.Background(), job)

	assert.Contains(t, h.notifier.kinds(job.ID), "error")
	assert.Empty(t, h.text.paths)
	left, _ := filepath.Glob(filepath.Join(dir, "rc-*.pdf"))
	assert.Empty(t, left)
}

func TestHandle_PanicIsContained(t *testing.T) {
	h := newHarness(t, extractorFunc(func(context.Context, string) extract.Report { panic("nil map") }))
	job := newJob("doc")

	h.orch.Handle(context.Background(), job)

	kinds := h.notifier.kinds(job.ID)
	assert.Contains(t, kinds, "error")
	assert.Equal(t, "clear", kinds[len(kinds)-1])
	assert.Equal(t, 0, h.accounts.count())
}

func TestHandle_DeliveryFailureIsNotCharged(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.resultErr = errors.New("chat unreachable")
	job := newJob("doc")

	h.orch.Handle(context.Background(), job)

	assert.Contains(t, h.notifier.kinds(job.ID), "error")
	assert.Equal(t, 0, h.accounts.count())
}

func TestHandle_TemplateLookupFailureUsesDefault(t *testing.T) {
	h := newHarness(t, nil)
	h.accounts.tmplErr = errors.New("db down")
	job := newJob("doc")

	h.orch.Handle(context.Background(), job)
	assert.Contains(t, h.notifier.kinds(job.ID), "result")
}

func TestHandle_PulsesWhileExtracting(t *testing.T) {
	slow := extractorFunc(func(ctx context.Context, text string) extract.Report {
		time.Sleep(60 * time.Millisecond)
		return extract.Report{Record: entity.Record{LoadNumber: "1"}.Normalize()}
	})
	h := newHarness(t, slow)
	job := newJob("doc")

	h.orch.Handle(context.Background(), job)

	var (
		pulses    []string
		renderIdx = -1
		lastPulse = -1
	)
	for i, e := range h.notifier.snapshot() {
		if e.state == constants.DocStateAwaitingAI {
			pulses = append(pulses, e.text)
			lastPulse = i
		}
		if e.state == constants.DocStateRendering {
			renderIdx = i
		}
	}
	require.NotEmpty(t, pulses)
	assert.Equal(t, PulseText(55), pulses[0])
	assert.Less(t, lastPulse, renderIdx)
	for _, p := range pulses {
		assert.NotContains(t, p, "[100%]")
	}
}

func TestHandle_TwoDocumentBurstIsSerialized(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	ex := extractorFunc(func(ctx context.Context, text string) extract.Report {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			<-release
		}
		return extract.Report{Record: entity.Record{}.Normalize()}
	})
	h := newHarness(t, ex)
	reg := async.NewRegistry(async.WithHandler(h.orch))

	first, second := newJob("doc"), newJob("doc")
	_, err := reg.Enqueue(context.Background(), first)
	require.NoError(t, err)
	_, err = reg.Enqueue(context.Background(), second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(h.notifier.kinds(first.ID)) >= 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.notifier.kinds(second.ID))

	close(release)
	require.Eventually(t, func() bool { return reg.Active() == 0 }, 2*time.Second, time.Millisecond)

	events := h.notifier.snapshot()
	firstTerminal, secondStart := -1, -1
	for i, e := range events {
		if e.job == first.ID && e.state == constants.DocStateDelivered {
			firstTerminal = i
		}
		if e.job == second.ID && secondStart < 0 {
			secondStart = i
		}
	}
	require.GreaterOrEqual(t, firstTerminal, 0)
	assert.Greater(t, secondStart, firstTerminal)
}

func TestStatusReporter_SkipsIdenticalText(t *testing.T) {
	n := &fakeNotifier{}
	job := newJob("doc")
	rep := NewStatusReporter(n, job, nil)

	rep.Update(context.Background(), constants.DocStateAwaitingAI, PulseText(95))
	rep.Update(context.Background(), constants.DocStateAwaitingAI, PulseText(95))
	rep.Update(context.Background(), constants.DocStateRendering, TextDone)
	rep.Update(context.Background(), constants.DocStateDelivered, TextDone)
	rep.Update(context.Background(), constants.DocStateDelivered, TextDone)
	rep.Clear(context.Background())
	rep.Clear(context.Background())

	assert.Equal(t, []string{"awaiting_ai", "rendering", "delivered", "clear"}, n.kinds(job.ID))

	var texts []string
	for _, e := range n.snapshot() {
		if e.kind == "status" {
			texts = append(texts, e.text)
		}
	}
	assert.Equal(t, []string{PulseText(95), TextDone, ""}, texts)
	assert.Equal(t, constants.DocStateDelivered, rep.State())
}

func TestPulseText(t *testing.T) {
	assert.Equal(t, "🧠 Thinking is hard... [60%]", PulseText(60))
	assert.Equal(t, "☕ My coffee is getting cold... [70%]", PulseText(70))
	assert.Equal(t, "💅 Almost done, don't rush me... [55%]", PulseText(55))
}

func TestStartPulse_StopsAndCaps(t *testing.T) {
	n := &fakeNotifier{}
	job := newJob("doc")
	rep := NewStatusReporter(n, job, nil)

	stop := startPulse(context.Background(), rep, time.Millisecond)
	require.Eventually(t, func() bool {
		ev := n.snapshot()
		return len(ev) > 0 && ev[len(ev)-1].text == PulseText(95)
	}, time.Second, time.Millisecond)
	stop()
	stop()

	count := len(n.snapshot())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, count, len(n.snapshot()))
}

func TestProcessor_Process(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "rc.pdf")
	require.NoError(t, os.WriteFile(pdf, pdfBytes, 0o600))

	proc := NewProcessor(nil, &fakeText{text: scenarioText},
		extract.NewService(extract.RegexExtractor{}, nil, extract.DeterministicFirst), render.NewRenderer(nil))

	out, err := proc.Process(context.Background(), pdf, "{{ load_number }}/{{ rate }}/{{ total_miles }}")
	require.NoError(t, err)
	assert.Equal(t, "482910/1,500.00/742", out.Text)
	assert.Equal(t, ocr.MethodPDFText, out.Method)
	require.Len(t, out.Layers, 1)

	notPDF := filepath.Join(dir, "x.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("PK\x03\x04"), 0o600))
	_, err = proc.Process(context.Background(), notPDF, "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = proc.Process(context.Background(), filepath.Join(dir, "absent.pdf"), "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
