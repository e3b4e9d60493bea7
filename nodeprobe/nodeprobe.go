// Package nodeprobe keeps polling the fleet's upstream nodes and blocks
// startup until all of them are healthy.
package nodeprobe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const probeInterval = 24 * time.Second

var errNotHealthy = fmt.Errorf("not all nodes are healthy")

type Node interface {
	Healthy(ctx context.Context) error
}

type Prober struct {
	logger           *zap.Logger
	interval         time.Duration
	nodes            map[string]Node
	nodesMu          sync.Mutex
	healthy          atomic.Bool
	cond             *sync.Cond
	unhealthyHandler func()
}

func NewProber(logger *zap.Logger, unhealthyHandler func(), nodes map[string]Node) *Prober {
	return &Prober{
		logger:           logger,
		unhealthyHandler: unhealthyHandler,
		interval:         probeInterval,
		nodes:            nodes,
		cond:             sync.NewCond(&sync.Mutex{}),
	}
}

// HealthCheck reports the result of the most recent probe round.
func (p *Prober) HealthCheck() error {
	if !p.healthy.Load() {
		return errNotHealthy
	}
	return nil
}

func (p *Prober) Start(ctx context.Context) {
	go func() {
		if err := p.Run(ctx); err != nil {
			p.logger.Error("finished probing nodes", zap.Error(err))
		}
	}()
}

func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.probe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	// Query all nodes in parallel.
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	var healthy atomic.Bool
	healthy.Store(true)
	var wg sync.WaitGroup
	p.nodesMu.Lock()
	for name, node := range p.nodes {
		wg.Add(1)
		go func(name string, node Node) {
			defer wg.Done()

			var err error
			defer func() {
				if e := recover(); e != nil {
					err = fmt.Errorf("panic: %v", e)
				}
				if err != nil {
					healthy.Store(false)
					cancel()
				}
			}()

			err = node.Healthy(ctx)
			if err != nil {
				p.logger.Error("node is not healthy", zap.String("node", name), zap.Error(err))
			}
		}(name, node)
	}
	p.nodesMu.Unlock()
	wg.Wait()

	p.cond.L.Lock()
	defer p.cond.L.Unlock()

	p.healthy.Store(healthy.Load())

	if !p.healthy.Load() {
		p.logger.Error("not all nodes are healthy")
		if h := p.unhealthyHandler; h != nil {
			h()
		}
		return
	}
	p.cond.Broadcast()
}

// Wait blocks until a probe round finds every node healthy.
func (p *Prober) Wait() {
	p.logger.Info("waiting until nodes are healthy")

	p.cond.L.Lock()
	defer p.cond.L.Unlock()

	for !p.healthy.Load() {
		p.cond.Wait()
	}
}

func (p *Prober) AddNode(name string, node Node) {
	p.nodesMu.Lock()
	defer p.nodesMu.Unlock()

	p.nodes[name] = node
}
