package render

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

// DefaultTemplate is used when the user has no template of their own.
const DefaultTemplate = `
<b>{{ broker }}</b>

<b>Load#</b> {{ load_number }}

{% for p in pickups -%}
<b>PU{{ loop.index }}:</b> {{ p.facility }}
{{ p.address }}
{% if p.time %}<b>TIME:</b> {{ p.time }}{% endif %}
{% endfor %}
—————————————
{% for d in deliveries -%}
<b>DEL{{ loop.index }}:</b> {{ d.facility }}
{{ d.address }}
{% if d.time %}<b>TIME:</b> {{ d.time }}{% endif %}
{% endfor %}

<b>TOTAL MILES:</b> {{ total_miles }}
<b>RATE:</b> {{ rate }}
`

const maxErrorDetail = 300

var (
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
	defaultCompiled = mustCompile(DefaultTemplate)
)

func mustCompile(src string) *Template {
	t, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// Render projects rec through userTemplate (or DefaultTemplate when blank).
// Template problems come back as the rendered text itself; Render never fails.
func (r *Renderer) Render(rec entity.Record, userTemplate string) (out string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("render.panic", "panic", p)
			out = ErrorText(fmt.Errorf("internal renderer failure"))
		}
	}()

	tmpl := defaultCompiled
	custom := strings.TrimSpace(userTemplate) != ""
	if custom {
		t, err := Compile(userTemplate)
		if err != nil {
			r.logger.Warn("render.template.invalid", "error", err)
			return ErrorText(err)
		}
		tmpl = t
	}

	text, err := tmpl.Execute(Context(rec))
	if err != nil {
		r.logger.Warn("render.execute.failed", "custom", custom, "error", err)
		return ErrorText(err)
	}
	return Collapse(text)
}

// Validate compiles tmpl without rendering it.
func Validate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return &Error{Msg: "template is empty"}
	}
	_, err := Compile(tmpl)
	return err
}

// Collapse squeezes runs of 3+ newlines into one blank line and trims the result.
func Collapse(s string) string {
	return strings.TrimSpace(excessNewlines.ReplaceAllString(s, "\n\n"))
}

// ErrorText is the user-visible message for a broken template.
func ErrorText(err error) string {
	detail := err.Error()
	if utf8.RuneCountInString(detail) > maxErrorDetail {
		detail = string([]rune(detail)[:maxErrorDetail]) + "…"
	}
	return "⚠️ <b>Template Error:</b> " + detail + "\n\nCheck your template syntax."
}

// Context builds the template variables: trimmed values with display defaults.
func Context(rec entity.Record) map[string]any {
	return map[string]any{
		"broker":      orDefault(rec.Broker, constants.DefaultBroker),
		"load_number": orDefault(rec.LoadNumber, constants.MissingValue),
		"rate":        orDefault(rec.Rate, constants.MissingValue),
		"total_miles": orDefault(rec.TotalMiles, constants.MissingValue),
		"pickups":     stopList(rec.Pickups),
		"deliveries":  stopList(rec.Deliveries),
	}
}

func stopList(stops []entity.Stop) []any {
	out := make([]any, 0, len(stops))
	for _, s := range stops {
		out = append(out, map[string]any{
			"facility": strings.TrimSpace(s.Facility),
			"address":  FormatAddress(s.Address),
			"time":     strings.TrimSpace(s.Time),
		})
	}
	return out
}

// FormatAddress splits a one-line "street, city, ST zip" address after the street.
func FormatAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.Contains(addr, "\n") || strings.Count(addr, ",") < 2 {
		return addr
	}
	street, rest, _ := strings.Cut(addr, ",")
	return strings.TrimSpace(street) + ",\n" + strings.TrimSpace(rest)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
