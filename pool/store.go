package pool

import (
	"context"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// Store is the live connection to one tenant database. Liveness and
// reconnection are the driver's business; the manager never re-pings.
type Store interface {
	Ping(ctx context.Context) error
	// CountUsage reports current consumption of a resource kind.
	CountUsage(ctx context.Context, kind tenants.ResourceKind) (int64, error)
	Close() error
}

// Connector builds a Store from a descriptor.
type Connector interface {
	Connect(ctx context.Context, conn tenants.ConnectionDescriptor) (Store, error)
}

type ConnectorFunc func(ctx context.Context, conn tenants.ConnectionDescriptor) (Store, error)

func (f ConnectorFunc) Connect(ctx context.Context, conn tenants.ConnectionDescriptor) (Store, error) {
	return f(ctx, conn)
}

// DriverConnector dispatches on the descriptor's driver name.
type DriverConnector map[string]Connector

func (dc DriverConnector) Connect(ctx context.Context, conn tenants.ConnectionDescriptor) (Store, error) {
	c, ok := dc[conn.DriverName()]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "no connector for driver %q", conn.DriverName())
	}
	return c.Connect(ctx, conn)
}
