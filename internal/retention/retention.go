package retention

import (
	"context"
	"time"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/store"
)

// Loop periodically purges expired artifacts. It is an owned task: Start
// launches it, Stop cancels it and waits for the goroutine to exit.
type Loop struct {
	store         store.Store
	retentionDays int
	interval      time.Duration
	log           *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(s store.Store, retentionDays int, interval time.Duration, baseLog *logger.Logger) *Loop {
	return &Loop{
		store:         s,
		retentionDays: retentionDays,
		interval:      interval,
		log:           baseLog.With("service", "RetentionLoop"),
	}
}

func (l *Loop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
}

func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.PurgeOnce(ctx); err != nil {
				l.log.Error("Artifact purge failed", "error", err)
			}
		}
	}
}

// PurgeOnce deletes artifacts whose expiry is older than the retention cutoff.
func (l *Loop) PurgeOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays)
	purged, err := l.store.PurgeArtifacts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		l.log.Info("Purged expired artifacts", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}
