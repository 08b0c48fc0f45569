package contract

// Handler encodes one contract's state-transition rule.
//
// Apply must treat state and action as read-only and return a freshly built
// document. Returning an error fails the call; the codec never emits a partial result.
type Handler interface {
	Apply(state, action Document) (Document, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(state, action Document) (Document, error)

// Apply calls f(state, action).
func (f HandlerFunc) Apply(state, action Document) (Document, error) {
	return f(state, action)
}
