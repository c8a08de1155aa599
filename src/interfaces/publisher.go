package interfaces

// -----------------------------------------------------------------------------
// IPublisher abstracts the client-facing transport. The chart hub never
// touches sockets directly; it addresses connections by id.
// -----------------------------------------------------------------------------

type IPublisher interface {

	// -----------------------------------------------------------------------------

	// SendTo delivers one event to one connection. Unknown connection ids
	// are a no-op (the client may have disconnected mid-flight).
	SendTo(connectionID string, event string, payload interface{})
}
