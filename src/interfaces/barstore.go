package interfaces

import "chart-hub/src/models"

// -----------------------------------------------------------------------------
// IBarStore defines the contract for the persistent candle archive.
// -----------------------------------------------------------------------------

type IBarStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveCandles upserts a backfilled candle batch for one key.
	SaveCandles(symbol, timeframe string, candles []models.MCandle) error

	// -----------------------------------------------------------------------------

	// SaveQualityEvents appends data-quality log entries.
	SaveQualityEvents(entries []models.MQualityLogEntry) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
