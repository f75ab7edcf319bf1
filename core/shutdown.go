package core

import (
	"context"
)

// ShutdownFunc is a cleanup handler run during graceful shutdown. It should
// honour ctx's deadline and be safe to call more than once.
//
//	var historyShutdown ShutdownFunc = func(ctx context.Context) error {
//	    return store.Close()
//	}
type ShutdownFunc func(ctx context.Context) error
