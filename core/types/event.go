package types

// Event is the wire-friendly representation of a protocol event: a type tag
// plus flat string attributes, ready for JSON encoding or indexing.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
