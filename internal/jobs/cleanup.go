package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/giftdraw/auth-bridge/internal/store"
)

// CleanupJob periodically prunes expired pairing token bookkeeping. Reads
// already evict lazily, so this only bounds store growth.
type CleanupJob struct {
	store    store.PairingStore
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(s store.PairingStore, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		store:    s,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called.
func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("pairing cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("pairing cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runOnce()
		case <-j.done:
			return
		}
	}
}

func (j *CleanupJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pruned, err := j.store.Cleanup(ctx)
	if err != nil {
		log.Error().Err(err).Msg("pairing cleanup failed")
		return
	}
	if pruned > 0 {
		log.Info().Int64("pruned", pruned).Msg("pruned expired pairing tokens")
	}
}
