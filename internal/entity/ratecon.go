package entity

import "strings"

// Stop is one pickup or delivery location.
type Stop struct {
	Facility string `json:"facility"`
	Address  string `json:"address"`
	Time     string `json:"time"`
}

// Record is the structured content of one Rate Confirmation.
// Missing values are empty strings, never omitted.
type Record struct {
	Broker     string `json:"broker"`
	LoadNumber string `json:"load_number"`
	Rate       string `json:"rate"`
	TotalMiles string `json:"total_miles"`
	Pickups    []Stop `json:"pickups"`
	Deliveries []Stop `json:"deliveries"`
}

// Normalize replaces nil stop lists with empty ones.
func (r Record) Normalize() Record {
	if r.Pickups == nil {
		r.Pickups = []Stop{}
	}
	if r.Deliveries == nil {
		r.Deliveries = []Stop{}
	}
	return r
}

// Incomplete reports whether rate, load number, or pickups are missing.
func (r Record) Incomplete() bool {
	return strings.TrimSpace(r.Rate) == "" ||
		strings.TrimSpace(r.LoadNumber) == "" ||
		len(r.Pickups) == 0
}

// IsEmpty reports whether no field carries a value.
func (r Record) IsEmpty() bool {
	return strings.TrimSpace(r.Broker) == "" &&
		strings.TrimSpace(r.LoadNumber) == "" &&
		strings.TrimSpace(r.Rate) == "" &&
		strings.TrimSpace(r.TotalMiles) == "" &&
		len(r.Pickups) == 0 &&
		len(r.Deliveries) == 0
}

// MilesMissing reports whether total miles is empty or a zero sentinel.
func (r Record) MilesMissing() bool {
	switch strings.TrimSpace(r.TotalMiles) {
	case "", "N/A", "0":
		return true
	}
	return false
}
