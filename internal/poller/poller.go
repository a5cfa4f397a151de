package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"gorsstag/internal/ingest"
	"gorsstag/internal/models"
)

// Poller triggers ingestion runs on a fixed interval. The loop runs in a
// single goroutine and each run completes before the next tick is considered,
// so runs never overlap.
type Poller struct {
	job          *ingest.Job
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	isPolling    bool
	lastRun      *models.RunReport
}

func New(job *ingest.Job, pollInterval time.Duration) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		job:          job,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	if p.isPolling {
		p.mu.Unlock()
		return
	}
	p.isPolling = true
	p.mu.Unlock()

	log.Printf("Starting ingestion poller with interval: %v", p.pollInterval)

	p.wg.Add(1)
	go p.pollLoop()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isPolling {
		p.mu.Unlock()
		return
	}
	p.isPolling = false
	p.mu.Unlock()

	log.Println("Stopping ingestion poller...")
	p.cancel()
	p.wg.Wait()
	log.Println("Ingestion poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Run immediately on start
	p.runOnce()

	for {
		select {
		case <-ticker.C:
			p.runOnce()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) runOnce() {
	report, err := p.job.Run(p.ctx)
	if err != nil {
		log.Printf("Ingestion run failed: %v", err)
	}

	p.mu.Lock()
	p.lastRun = report
	p.mu.Unlock()
}

// LastRun returns the report of the most recent ingestion run, or nil if no
// run has completed yet.
func (p *Poller) LastRun() *models.RunReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun
}
