package registry

import "context"

// ConnectionRegistry provides read-only access to registered connections.
type ConnectionRegistry interface {
	// GetConnection returns the named connection.
	// Returns nil if the connection is not registered.
	GetConnection(ctx context.Context, name string) (*Connection, error)
	// ListConnections returns every registered connection sorted by name.
	ListConnections(ctx context.Context) ([]Connection, error)
}
