package interfaces

// -----------------------------------------------------------------------------
// ILiveFeed owns the upstream streaming connection and symbol-level tick
// subscriptions. Subscribe/unsubscribe are reference-counted by the gateway
// and idempotent from the caller's perspective.
// -----------------------------------------------------------------------------

type ILiveFeed interface {

	// -----------------------------------------------------------------------------

	// Supports reports whether the gateway can stream aggregate ticks for
	// this symbol at all.
	Supports(symbol string) bool

	// -----------------------------------------------------------------------------

	// SubscribeAggregates adds a reference to the symbol's aggregate stream,
	// opening it upstream on the first reference.
	SubscribeAggregates(symbol string)

	// -----------------------------------------------------------------------------

	// UnsubscribeAggregates drops a reference, tearing the upstream stream
	// down when the count reaches zero.
	UnsubscribeAggregates(symbol string)
}
