package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

// ErrNoJSONObject means the model answer held no JSON object at all.
var ErrNoJSONObject = errors.New("no json object in model output")

var (
	recordSynonyms = map[string]string{
		"broker_name":   "broker",
		"company":       "broker",
		"load":          "load_number",
		"load_id":       "load_number",
		"order_number":  "load_number",
		"reference":     "load_number",
		"total_rate":    "rate",
		"carrier_pay":   "rate",
		"miles":         "total_miles",
		"distance":      "total_miles",
		"pickup":        "pickups",
		"shippers":      "pickups",
		"origins":       "pickups",
		"delivery":      "deliveries",
		"consignees":    "deliveries",
		"destinations":  "deliveries",
		"drops":         "deliveries",
		"stops_pickup":  "pickups",
		"stops_deliver": "deliveries",
	}
	stopSynonyms = map[string]string{
		"name":        "facility",
		"company":     "facility",
		"location":    "address",
		"appointment": "time",
		"date":        "time",
		"datetime":    "time",
		"window":      "time",
	}
	scalarKeys = []string{"broker", "load_number", "rate", "total_miles"}
	stopKeys   = []string{"pickups", "deliveries"}
	stopFields = []string{"facility", "address", "time"}
)

// StripCodeFences removes ```json / ``` markers a model may wrap its answer in.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// isolateObject trims chatter around the outermost {...}.
func isolateObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return s[start : end+1], nil
}

// SanitizeRecordJSON normalizes a model answer toward the record schema:
// - renames known synonyms (shipper -> pickups, distance -> total_miles)
// - coerces numbers to strings, drops nulls
// - wraps a single stop object into a list
// - removes unknown keys
func SanitizeRecordJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	for k := range maps.Clone(m) {
		lk := strings.ToLower(strings.TrimSpace(k))
		to, ok := recordSynonyms[lk]
		if !ok {
			if lk != k {
				to = lk
			} else {
				continue
			}
		}
		if _, exists := m[to]; !exists {
			m[to] = m[k]
		}
		delete(m, k)
		dropped = append(dropped, k+"->"+to)
	}

	for _, k := range scalarKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, keep := coerceScalar(k, v)
		if !keep {
			delete(m, k)
			dropped = append(dropped, k+"(type)")
			continue
		}
		m[k] = s
	}

	for _, k := range stopKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		stops, n := coerceStops(v)
		if stops == nil {
			delete(m, k)
			dropped = append(dropped, k+"(type)")
			continue
		}
		if n > 0 {
			dropped = append(dropped, fmt.Sprintf("%s(%d items)", k, n))
		}
		m[k] = stops
	}

	allowed := append(slices.Clone(scalarKeys), stopKeys...)
	for k := range maps.Clone(m) {
		if !slices.Contains(allowed, k) {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Debug("llm.extract.sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func coerceScalar(key string, v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		if key == "rate" {
			return strconv.FormatFloat(t, 'f', 2, 64), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// coerceStops returns the cleaned list (nil when v is unusable) and the number of items dropped.
func coerceStops(v any) ([]any, int) {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	case nil:
		return []any{}, 0
	default:
		return nil, 0
	}

	out := make([]any, 0, len(items))
	skipped := 0
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		stop := make(map[string]any, len(stopFields))
		for k, val := range obj {
			lk := strings.ToLower(strings.TrimSpace(k))
			if to, ok := stopSynonyms[lk]; ok {
				lk = to
			}
			if !slices.Contains(stopFields, lk) {
				continue
			}
			if _, exists := stop[lk]; exists && lk != strings.ToLower(k) {
				continue
			}
			switch s := val.(type) {
			case string:
				stop[lk] = strings.TrimSpace(s)
			case float64:
				stop[lk] = strconv.FormatFloat(s, 'f', -1, 64)
			case nil:
				stop[lk] = ""
			}
		}
		out = append(out, stop)
	}
	return out, skipped
}

// DecodeRecord turns raw model content into a validated Record:
// fences stripped, object isolated, sanitized, schema-validated, unmarshalled.
func DecodeRecord(content string, logger *slog.Logger) (entity.Record, []byte, error) {
	obj, err := isolateObject(StripCodeFences(content))
	if err != nil {
		return entity.Record{}, []byte(content), err
	}
	cleaned, _, err := SanitizeRecordJSON([]byte(obj), logger)
	if err != nil {
		return entity.Record{}, []byte(obj), err
	}
	if err := ValidateRecordJSON(cleaned); err != nil {
		return entity.Record{}, cleaned, fmt.Errorf("schema validation failed: %w", err)
	}
	var rec entity.Record
	if err := json.Unmarshal(cleaned, &rec); err != nil {
		return entity.Record{}, cleaned, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec.Normalize(), cleaned, nil
}

// CleanTemplate strips fences (```jinja, ```jinja2, ```) around a generated template.
func CleanTemplate(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{}") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
