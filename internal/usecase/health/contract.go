package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// CatalogChecker reports the outcome of the last catalog load.
type CatalogChecker interface {
	LastError() error
}
