package collab

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs the idle sweep at the top of every hour.
const DefaultSweepSpec = "0 * * * *"

// Sweeper drives the manager's idle-room cleanup on a cron schedule.
type Sweeper struct {
	manager *Manager
	cron    *cron.Cron
	log     *slog.Logger
}

// NewSweeper schedules SweepIdle against the given cron spec.
func NewSweeper(m *Manager, spec string, log *slog.Logger) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Sweeper{
		manager: m,
		cron:    cron.New(),
		log:     log,
	}
	_, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) run() {
	if n := s.manager.SweepIdle(time.Now()); n > 0 {
		s.log.Info("idle sweep complete", "rooms_removed", n)
	}
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
