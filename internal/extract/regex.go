package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

var (
	loadRe  = regexp.MustCompile(`(?i)\b(?:Load|Order|Reference|PRO)\s*#[:\s]*([A-Z0-9][A-Z0-9-]*)`)
	rateRe  = regexp.MustCompile(`(?i)(?:Total Carrier Pay|Total Pay|Flat Rate|Rate)[:\s]*\$?\s*([\d,]+\.\d{2})`)
	milesRe = regexp.MustCompile(`(?i)(?:Total Miles|Distance|Miles)[:\s]*(\d[\d.,]*)`)
)

// RegexExtractor is the deterministic layer. It never fails and never fills stops.
type RegexExtractor struct{}

func NewRegexExtractor() RegexExtractor { return RegexExtractor{} }

func (RegexExtractor) Name() string { return "regex" }

func (RegexExtractor) Extract(_ context.Context, text string) (entity.Record, error) {
	rec := entity.Record{
		Broker:     brokerHeading(text),
		LoadNumber: findLoadNumber(text),
		Rate:       firstGroup(rateRe, text),
		TotalMiles: strings.TrimRight(firstGroup(milesRe, text), ".,"),
	}
	return rec.Normalize(), nil
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// findLoadNumber returns the first labelled token carrying at least one digit,
// so "Order #: Date" style noise is skipped.
func findLoadNumber(text string) string {
	for _, m := range loadRe.FindAllStringSubmatch(text, -1) {
		tok := strings.TrimRight(m[1], "-")
		if strings.IndexFunc(tok, unicode.IsDigit) >= 0 {
			return tok
		}
	}
	return ""
}

// brokerHeading joins the first non-empty lines; document headers carry the issuer.
func brokerHeading(text string) string {
	lines := make([]string, 0, constants.BrokerHeadLines)
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == constants.BrokerHeadLines {
			break
		}
	}
	s := strings.Join(lines, " ")
	if utf8.RuneCountInString(s) <= constants.BrokerMaxChars {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:constants.BrokerMaxChars]))
}
