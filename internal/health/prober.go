package health

import (
	"context"
	"time"

	"courier/internal/status"
	"go.uber.org/zap"
)

// Pinger is the interface the prober checks storage liveness through.
type Pinger interface {
	Ping(ctx context.Context) error
}

const defaultInterval = 5 * time.Second

// Prober periodically pings the storage backend and drives the daemon
// state machine between READY and DEGRADED.
type Prober struct {
	pinger   Pinger
	machine  *status.Machine
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewProber creates a prober with the default probe interval.
func NewProber(p Pinger, m *status.Machine, logger *zap.Logger) *Prober {
	return &Prober{
		pinger:   p,
		machine:  m,
		logger:   logger,
		interval: defaultInterval,
	}
}

// Start begins probing in the background.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop stops the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Prober) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		if p.machine.Current() != status.Degraded {
			p.logger.Warn("storage unreachable", zap.Error(err))
		}
		if terr := p.machine.Transition(status.Degraded); terr != nil {
			p.logger.Error("failed to mark degraded", zap.Error(terr))
		}
		return
	}

	if p.machine.Current() == status.Degraded {
		p.logger.Info("storage recovered")
	}
	if terr := p.machine.Transition(status.Ready); terr != nil {
		p.logger.Error("failed to mark ready", zap.Error(terr))
	}
}
