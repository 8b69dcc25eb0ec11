package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
)

// Progress texts shown in the job's status message.
const (
	TextDownloading = "📄 Downloading this boring PDF... [15%]"
	TextReading     = "🔍 Reading the tiny text for you... [45%]"
	TextDone        = "✨ Finally! Here it is. [100%]"

	pulseStart = 50
	pulseStep  = 5
	pulseMax   = 95
)

var pulseQuotes = []string{
	"🧠 Thinking is hard... [%d%%]",
	"☕ My coffee is getting cold... [%d%%]",
	"💅 Almost done, don't rush me... [%d%%]",
}

// PulseText is the status line for an in-flight extraction at percent.
func PulseText(percent int) string {
	return fmt.Sprintf(pulseQuotes[(percent/10)%len(pulseQuotes)], percent)
}

// FailureText is the user-visible message for a failed document.
func FailureText(err error) string {
	return "🙄 Ugh, even I can't fix this error: " + err.Error()
}

// StatusReporter forwards status updates for one job. A text identical to the last one
// sent is never repeated: with the same state the update is dropped, with a new state
// only the state goes out.
type StatusReporter struct {
	notifier Notifier
	job      async.Job
	logger   *slog.Logger

	mu    sync.Mutex
	last  string
	state constants.DocState
	shown bool
}

func NewStatusReporter(n Notifier, job async.Job, logger *slog.Logger) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{notifier: n, job: job, logger: logger}
}

// Update reports state with text. Transport errors are logged, never returned.
func (s *StatusReporter) Update(ctx context.Context, state constants.DocState, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	send := text
	if s.shown && text == s.last {
		if state == s.state {
			return
		}
		send = ""
	}
	if err := s.notifier.Status(ctx, s.job, state, send); err != nil {
		s.logger.Warn("status update failed", "job_id", s.job.ID, "state", state, "error", err)
		return
	}
	s.last, s.state, s.shown = text, state, true
}

// State is the last reported state.
func (s *StatusReporter) State() constants.DocState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Clear removes the status message if one was shown.
func (s *StatusReporter) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shown {
		return
	}
	if err := s.notifier.ClearStatus(ctx, s.job); err != nil {
		s.logger.Warn("status clear failed", "job_id", s.job.ID, "error", err)
	}
	s.shown = false
}

// startPulse ticks the status forward while a long call is in flight. The returned stop
// cancels the ticker and waits for it, so no pulse is sent after stop returns.
func startPulse(ctx context.Context, rep *StatusReporter, every time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		percent := pulseStart
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				percent = min(percent+pulseStep, pulseMax)
				rep.Update(ctx, constants.DocStateAwaitingAI, PulseText(percent))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
