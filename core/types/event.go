package types

// Event represents a typed event emitted after a ledger operation commits.
// ID and EmittedAt are stamped by the event bus at delivery time.
type Event struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  int64             `json:"emittedAt,omitempty"`
}

// Clone returns a deep copy so subscribers never share the attribute map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Attributes = make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	return &clone
}
