package constants

import "time"

// Text acquisition.
const (
	OCRMinTextChars = 50
	OCRDPI          = 300
	CIDMarker       = "(cid:"
)

// Extraction.
const (
	AIMaxPromptChars = 12000
	BrokerHeadLines  = 3
	BrokerMaxChars   = 100
	MetersToMiles    = 0.000621371
)

// External services.
const (
	DefaultAIBaseURL     = "https://api.deepseek.com/v1"
	DefaultAIModel       = "deepseek-chat"
	DefaultAITimeout     = 60 * time.Second
	TemplateAITimeout    = 30 * time.Second
	DefaultGeocoderURL   = "https://nominatim.openstreetmap.org"
	DefaultRouterURL     = "http://router.project-osrm.org"
	DefaultGeoUserAgent  = "LazyBot_Logistics/2.0"
	DefaultGeoTimeout    = 10 * time.Second
	DefaultFreeUses      = 2
	DefaultJobTimeout    = 3 * time.Minute
	ProgressPulseEvery   = 1500 * time.Millisecond
	DefaultThrottleEvery = time.Second
)

// Rendering.
const (
	DefaultBroker    = "Rate Confirmation"
	MissingValue     = "N/A"
	MaxTemplateBytes = 16 << 10
	MaxRenderBytes   = 64 << 10
)
