package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// IdleExpirer is implemented by Machine.
type IdleExpirer interface {
	ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// Janitor periodically expires idle conversations.
type Janitor struct {
	expirer  IdleExpirer
	maxIdle  time.Duration
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewJanitor creates a janitor running on a cron spec such as "@every 1m".
func NewJanitor(expirer IdleExpirer, schedule string, maxIdle time.Duration) (*Janitor, error) {
	if maxIdle <= 0 {
		return nil, fmt.Errorf("janitor max idle must be positive")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return &Janitor{
		expirer:  expirer,
		maxIdle:  maxIdle,
		schedule: schedule,
	}, nil
}

// Start begins the schedule
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.Sweep); err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	c.Start()

	j.cron = c
	j.running = true

	log.Info().
		Str("schedule", j.schedule).
		Dur("max_idle", j.maxIdle).
		Msg("Conversation janitor started")

	return nil
}

// Sweep runs one expiry pass.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := j.expirer.ExpireIdle(ctx, j.maxIdle); err != nil {
		log.Error().Err(err).Msg("Failed to expire idle conversations")
	}
}

// Stop halts the schedule and waits for a running sweep
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is not running")
	}
	c := j.cron
	j.running = false
	j.cron = nil
	j.mu.Unlock()

	<-c.Stop().Done()
	log.Info().Msg("Conversation janitor stopped")
	return nil
}
