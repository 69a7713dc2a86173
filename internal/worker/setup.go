package worker

import (
	"fmt"
	"log/slog"

	"github.com/pasturelab/vettriage/internal/diag"
	"github.com/pasturelab/vettriage/internal/metrics"
)

// InitializeDiagClient builds the diagnostic service client with its full
// resilience pipeline. Returned for dependency injection; no global state is
// set.
func InitializeDiagClient(cfg *diag.Config, logger *slog.Logger, m metrics.Metrics) (diag.Client, error) {
	client, err := diag.New(cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("initialize diagnostic client: %w", err)
	}
	return client, nil
}
