package extract

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/ratecon-intake/internal/entity"
)

// MergePolicy decides which layer runs first; later layers only fill gaps.
type MergePolicy string

const (
	DeterministicFirst MergePolicy = "deterministic-first"
	AIFirst            MergePolicy = "ai-first"
)

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeterministicFirst:
		return DeterministicFirst, nil
	case AIFirst:
		return AIFirst, nil
	}
	return "", fmt.Errorf("unknown merge policy %q", s)
}

// fillGaps copies into dst every field of src that dst lacks. Values already in dst win.
func fillGaps(dst, src entity.Record) entity.Record {
	fill := func(d *string, s string) {
		if strings.TrimSpace(*d) == "" && strings.TrimSpace(s) != "" {
			*d = strings.TrimSpace(s)
		}
	}
	fill(&dst.Broker, src.Broker)
	fill(&dst.LoadNumber, src.LoadNumber)
	fill(&dst.Rate, src.Rate)
	if dst.MilesMissing() && !src.MilesMissing() {
		dst.TotalMiles = strings.TrimSpace(src.TotalMiles)
	}
	if len(dst.Pickups) == 0 && len(src.Pickups) > 0 {
		dst.Pickups = src.Pickups
	}
	if len(dst.Deliveries) == 0 && len(src.Deliveries) > 0 {
		dst.Deliveries = src.Deliveries
	}
	return dst.Normalize()
}
