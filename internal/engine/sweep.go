package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kneutral-org/sla-engine/internal/logging"
	"github.com/kneutral-org/sla-engine/internal/metrics"
	"github.com/kneutral-org/sla-engine/internal/tracker"
)

// SweepResult summarizes one recompute sweep.
type SweepResult struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Sweep recomputes every unresolved tracking record using the worker pool.
// Individual record failures are logged and counted; they never abort the
// sweep.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	logger := logging.SweepLogger(e.logger, uuid.NewString())

	records, err := e.records.ListActive(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	jobs := make(chan string)
	for i := 0; i < e.sweepWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticketID := range jobs {
				if _, err := e.RecomputeTicket(ctx, ticketID); err != nil {
					metrics.RecordSweepRecord("error")
					logger.Error().
						Err(err).
						Str("ticketId", ticketID).
						Msg("sweep recompute failed")

					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				metrics.RecordSweepRecord("ok")
			}
		}()
	}

	for _, rec := range records {
		select {
		case jobs <- rec.TicketID:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return SweepResult{}, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	e.updateStateGauges(records)

	result := SweepResult{
		Processed: len(records),
		Failed:    failed,
		Duration:  time.Since(start),
	}
	metrics.RecordSweep(result.Duration.Seconds())

	logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("sweep completed")

	return result, nil
}

func (e *Engine) updateStateGauges(records []*tracker.Record) {
	counts := map[tracker.State]int{
		tracker.StateActive: 0,
		tracker.StatePaused: 0,
	}
	for _, rec := range records {
		counts[rec.State]++
	}
	for state, n := range counts {
		metrics.SetTrackedRecords(string(state), float64(n))
	}
}
