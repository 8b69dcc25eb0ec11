package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
	"github.com/joseph-ayodele/ratecon-intake/internal/llm"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	rec   entity.Record
	err   error
}

func (f *fakeBackend) ExtractFields(_ context.Context, req llm.ExtractRequest) (entity.Record, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rec, nil, f.err
}

type fakeResolver struct {
	miles          string
	origin, target string
	calls          int
}

func (f *fakeResolver) Miles(_ context.Context, origin, destination string) string {
	f.calls++
	f.origin, f.target = origin, destination
	return f.miles
}

type panicLayer struct{}

func (panicLayer) Name() string { return "panic" }
func (panicLayer) Extract(context.Context, string) (entity.Record, error) {
	panic("boom")
}

const scenarioText = "Load #: 482910\nTotal Carrier Pay: $1,500.00\nTotal Miles: 742"

func aiStops() entity.Record {
	return entity.Record{
		Broker:     "RYAN TRANSPORTATION SERVICE, INC.",
		LoadNumber: "999999",
		Rate:       "2000.00",
		TotalMiles: "800",
		Pickups:    []entity.Stop{{Facility: "ACME", Address: "1 Dock Rd, Joliet, IL 60431", Time: "08:00"}},
		Deliveries: []entity.Stop{{Facility: "BIG BOX", Address: "9 Main St, Dallas, TX 75201"}},
	}
}

func TestRegexExtractor_Scenario(t *testing.T) {
	rec, err := NewRegexExtractor().Extract(context.Background(), scenarioText)
	require.NoError(t, err)
	assert.Equal(t, "482910", rec.LoadNumber)
	assert.Equal(t, "1,500.00", rec.Rate)
	assert.Equal(t, "742", rec.TotalMiles)
	assert.Empty(t, rec.Pickups)
	assert.Empty(t, rec.Deliveries)
	assert.NotNil(t, rec.Pickups)
}

func TestRegexExtractor_Fields(t *testing.T) {
	tests := []struct {
		name, text       string
		load, rate, mile string
	}{
		{name: "order label", text: "Order # A77-1023", load: "A77-1023"},
		{name: "pro label lowercase", text: "pro#: 5512", load: "5512"},
		{name: "skip token without digits", text: "Reference #: Date\nLoad # 7781", load: "7781"},
		{name: "flat rate", text: "Flat Rate $950.00", rate: "950.00"},
		{name: "rate confirmation header is not a rate", text: "Rate Confirmation\nRate: $1,200.50", rate: "1,200.50"},
		{name: "total pay before fees", text: "Total Pay: 2,100.00\nLumper fee 50.00", rate: "2,100.00"},
		{name: "distance", text: "Distance: 1,204.5 mi", mile: "1,204.5"},
		{name: "miles trailing dot", text: "Miles: 300.", mile: "300"},
		{name: "nothing", text: "scanned garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := RegexExtractor{}.Extract(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.load, rec.LoadNumber)
			assert.Equal(t, tt.rate, rec.Rate)
			assert.Equal(t, tt.mile, rec.TotalMiles)
		})
	}
}

func TestRegexExtractor_Broker(t *testing.T) {
	text := "\n\n  RYAN TRANSPORTATION  \n\nMC 123456\nPhone 555-1234\nLoad # 1"
	rec, _ := RegexExtractor{}.Extract(context.Background(), text)
	assert.Equal(t, "RYAN TRANSPORTATION MC 123456 Phone 555-1234", rec.Broker)

	long := strings.Repeat("W", 150)
	rec, _ = RegexExtractor{}.Extract(context.Background(), long)
	assert.Equal(t, 100, len(rec.Broker))
}

func TestLoadNumberVerbatimRegardlessOfAI(t *testing.T) {
	texts := []string{
		"Load #: 482910",
		"BROKER INC\nLoad # 31337\nRate: $10.00",
		"Reference # XK2231",
	}
	backends := map[string]*fakeBackend{
		"down":    {err: errors.New("503")},
		"answers": {rec: aiStops()},
	}
	for _, text := range texts {
		want, _ := RegexExtractor{}.Extract(context.Background(), text)
		require.NotEmpty(t, want.LoadNumber)
		for name, b := range backends {
			svc := NewService(RegexExtractor{}, NewAIExtractor(b, 0, nil), DeterministicFirst)
			got := svc.Extract(context.Background(), text)
			assert.Equal(t, want.LoadNumber, got.LoadNumber, "%s / %q", name, text)
		}
	}
}

func TestService_DeterministicWins(t *testing.T) {
	b := &fakeBackend{rec: aiStops()}
	svc := NewService(RegexExtractor{}, NewAIExtractor(b, 0, nil), DeterministicFirst)

	rep := svc.ExtractReport(context.Background(), scenarioText)

	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "482910", rep.Record.LoadNumber)
	assert.Equal(t, "1,500.00", rep.Record.Rate)
	assert.Equal(t, "742", rep.Record.TotalMiles)
	assert.Equal(t, aiStops().Pickups, rep.Record.Pickups)
	assert.Equal(t, aiStops().Deliveries, rep.Record.Deliveries)
	require.Len(t, rep.Layers, 2)
	assert.Equal(t, OutcomeOK, rep.Layers[1].Outcome)
	assert.False(t, rep.MilesBackfilled)
}

func TestService_AISkippedWhenComplete(t *testing.T) {
	b := &fakeBackend{rec: aiStops()}
	done := &staticLayer{name: "full", rec: aiStops()}
	svc := NewService(done, NewAIExtractor(b, 0, nil), DeterministicFirst)

	rep := svc.ExtractReport(context.Background(), "anything")
	assert.Equal(t, 0, b.calls)
	assert.Equal(t, OutcomeSkipped, rep.Layers[1].Outcome)
}

func TestService_AIErrorFallsBackAndBackfillSkipped(t *testing.T) {
	res := &fakeResolver{miles: "123"}
	b := &fakeBackend{err: errors.New("http 500")}
	text := "Load #: 482910\nTotal Carrier Pay: $1,500.00"
	svc := NewService(RegexExtractor{}, NewAIExtractor(b, 0, nil), DeterministicFirst, WithResolver(res))

	rep := svc.ExtractReport(context.Background(), text)

	assert.Equal(t, "482910", rep.Record.LoadNumber)
	assert.Equal(t, "", rep.Record.TotalMiles)
	assert.Empty(t, rep.Record.Pickups)
	assert.Equal(t, 0, res.calls)
	assert.Equal(t, OutcomeError, rep.Layers[1].Outcome)
	assert.Contains(t, rep.Layers[1].Error, "http 500")
}

func TestService_BackfillUsesFirstPickupLastDelivery(t *testing.T) {
	ai := aiStops()
	ai.TotalMiles = ""
	ai.Deliveries = append(ai.Deliveries, entity.Stop{Address: "77 Last Rd, Austin, TX 73301"})
	res := &fakeResolver{miles: "912.4"}
	svc := NewService(RegexExtractor{}, NewAIExtractor(&fakeBackend{rec: ai}, 0, nil), DeterministicFirst, WithResolver(res))

	rep := svc.ExtractReport(context.Background(), "Load # 1\nRate: $5.00\nTotal Miles: 0")

	assert.True(t, rep.MilesBackfilled)
	assert.Equal(t, "912.4", rep.Record.TotalMiles)
	assert.Equal(t, "1 Dock Rd, Joliet, IL 60431", res.origin)
	assert.Equal(t, "77 Last Rd, Austin, TX 73301", res.target)
}

func TestService_BackfillFailureLeavesEmpty(t *testing.T) {
	ai := aiStops()
	ai.TotalMiles = ""
	res := &fakeResolver{miles: ""}
	svc := NewService(RegexExtractor{}, NewAIExtractor(&fakeBackend{rec: ai}, 0, nil), DeterministicFirst, WithResolver(res))

	rec := svc.Extract(context.Background(), "no labels here")
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, "", rec.TotalMiles)
}

func TestService_AIFirst(t *testing.T) {
	ai := aiStops()
	ai.Rate = ""
	svc := NewService(RegexExtractor{}, NewAIExtractor(&fakeBackend{rec: ai}, 0, nil), AIFirst)
	assert.Equal(t, []string{"ai", "regex"}, svc.Layers())

	rec := svc.Extract(context.Background(), scenarioText)
	assert.Equal(t, "999999", rec.LoadNumber)
	assert.Equal(t, "1,500.00", rec.Rate)
	assert.Equal(t, "800", rec.TotalMiles)
}

func TestService_AIFirstDegradesToDeterministic(t *testing.T) {
	svc := NewService(RegexExtractor{}, NewAIExtractor(&fakeBackend{err: context.DeadlineExceeded}, 0, nil), AIFirst)

	rec := svc.Extract(context.Background(), scenarioText)
	assert.Equal(t, "482910", rec.LoadNumber)
	assert.Equal(t, "1,500.00", rec.Rate)
}

func TestService_UnconfiguredAIIsDropped(t *testing.T) {
	svc := NewService(RegexExtractor{}, NewAIExtractor(nil, 0, nil), DeterministicFirst)
	assert.Equal(t, []string{"regex"}, svc.Layers())

	svc = NewService(RegexExtractor{}, nil, AIFirst)
	assert.Equal(t, []string{"regex"}, svc.Layers())
}

func TestService_PanickingLayer(t *testing.T) {
	var outcomes []string
	svc := NewService(panicLayer{}, nil, DeterministicFirst, WithObserver(func(layer, outcome string, _ int64) {
		outcomes = append(outcomes, layer+":"+outcome)
	}))

	rec := svc.Extract(context.Background(), "x")
	assert.True(t, rec.IsEmpty())
	assert.Equal(t, []string{"panic:error"}, outcomes)
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeterministicFirst, p)

	p, err = ParseMergePolicy(" AI-First ")
	require.NoError(t, err)
	assert.Equal(t, AIFirst, p)

	_, err = ParseMergePolicy("coin-flip")
	assert.Error(t, err)
}

func TestFillGaps(t *testing.T) {
	dst := entity.Record{Rate: "100.00", TotalMiles: "N/A"}
	got := fillGaps(dst, entity.Record{Rate: "200.00", Broker: " ECHO ", TotalMiles: "50"})
	assert.Equal(t, "100.00", got.Rate)
	assert.Equal(t, "ECHO", got.Broker)
	assert.Equal(t, "50", got.TotalMiles)
	assert.NotNil(t, got.Deliveries)
}

type staticLayer struct {
	name string
	rec  entity.Record
}

func (s *staticLayer) Name() string { return s.name }
func (s *staticLayer) Extract(context.Context, string) (entity.Record, error) {
	return s.rec, nil
}
