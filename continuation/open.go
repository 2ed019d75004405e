package continuation

import (
	"context"
	"fmt"
	"time"
)

// Options selects and configures a Store backend.
type Options struct {
	// Driver is "sqlite" or "datastore".
	Driver    string
	Path      string
	ProjectID string
	Kind      string
	TTL       time.Duration
}

// Open creates the Store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLiteStore(opts.Path, opts.TTL)
	case "datastore":
		return NewDatastoreStore(ctx, opts.ProjectID, opts.Kind, opts.TTL)
	default:
		return nil, fmt.Errorf("unknown continuation store %q", opts.Driver)
	}
}
