package constants

// DocState is the lifecycle state of one uploaded document.
type DocState string

// Stable values (exposed over the jobs API).
const (
	DocStateQueued         DocState = "queued"
	DocStateDownloading    DocState = "downloading"
	DocStateExtractingText DocState = "extracting_text"
	DocStateAwaitingAI     DocState = "awaiting_ai"
	DocStateRendering      DocState = "rendering"
	DocStateDelivered      DocState = "delivered" // terminal
	DocStateFailed         DocState = "failed"    // terminal
)

// Terminal reports whether no further transitions follow s.
func (s DocState) Terminal() bool {
	return s == DocStateDelivered || s == DocStateFailed
}
