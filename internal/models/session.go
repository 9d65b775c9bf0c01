package models

// Session identifies one live broadcast session as reported by the server.
// Exactly one session is current at a time, or none; the reconciler owns
// that decision.
type Session struct {
	ID        string `json:"id"`
	StreamKey string `json:"stream_key,omitempty"`
	HLSURL    string `json:"hls_url,omitempty"`
}
