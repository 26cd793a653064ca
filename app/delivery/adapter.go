package delivery

import (
	"context"

	"FiscalAgent/app/receipt"
)

// Adapter ships an assembled command stream to a physical printer. Adapters
// own connection setup and transport; they never inspect or rewrite the
// stream. Errors are logged by the adapter and returned to the caller, which
// decides whether the failure is fatal or retryable.
type Adapter interface {
	// Name identifies the adapter in logs and in the print journal.
	Name() string

	// Deliver sends the stream. A nil return means the transport accepted
	// the full payload, not that paper left the printer.
	Deliver(ctx context.Context, stream *receipt.CommandStream) error
}
