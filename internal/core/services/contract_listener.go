package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/metrics"
	"github.com/zkreputation/verification-node/internal/repositories"
)

const defaultPollInterval = 30 * time.Second

// ContractListener polls the verification contract and hands every new event to the reconciler.
// Reorgs are not handled: a block is considered final as soon as it is polled.
type ContractListener struct {
	source     ports.EventSource
	reconciler ports.VerificationReconciler
	metrics    *metrics.Metrics
	interval   time.Duration

	// watermark is written by Tick only, under tickMu
	watermark atomic.Uint64
	tickMu    sync.Mutex

	mu       sync.Mutex
	running  bool
	starting bool
	stopCh   chan struct{}
	done     chan struct{}
}

// NewContractListener - constructor
func NewContractListener(source ports.EventSource, reconciler ports.VerificationReconciler, m *metrics.Metrics, pollInterval time.Duration) *ContractListener {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &ContractListener{
		source:     source,
		reconciler: reconciler,
		metrics:    m,
		interval:   pollInterval,
	}
}

// Start reads the chain height once, takes it as the watermark and starts polling. Events emitted
// before Start are never processed. Starting a running listener does nothing.
func (l *ContractListener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.starting {
		l.mu.Unlock()
		log.Warn(ctx, "contract listener already running", "lastProcessedBlock", l.LastProcessedBlock())
		return nil
	}
	l.starting = true
	l.mu.Unlock()

	// the rpc may take a while, readers of the running state must not wait for it
	height, err := l.source.CurrentHeight(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.starting = false
	if err != nil {
		log.Error(ctx, "contract listener cannot read chain height", "err", err)
		return err
	}
	l.tickMu.Lock()
	l.advance(height)
	l.tickMu.Unlock()

	l.running = true
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	// the loop outlives the caller request, it keeps the logger only
	go l.run(context.WithoutCancel(ctx), l.stopCh, l.done)

	l.metrics.ListenerRunning(true)
	log.Info(ctx, "contract listener started", "fromBlock", l.LastProcessedBlock(), "interval", l.interval)
	return nil
}

// Stop cancels the polling. An in-flight tick is allowed to finish before Stop returns.
func (l *ContractListener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	done := l.done
	l.mu.Unlock()

	<-done
	l.metrics.ListenerRunning(false)
}

// IsRunning tells whether the listener is polling
func (l *ContractListener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// LastProcessedBlock returns the watermark
func (l *ContractListener) LastProcessedBlock() uint64 {
	return l.watermark.Load()
}

func (l *ContractListener) run(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			log.Info(ctx, "contract listener stopped", "lastProcessedBlock", l.LastProcessedBlock())
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				log.Error(ctx, "contract listener tick failed", "err", err, "lastProcessedBlock", l.LastProcessedBlock())
			}
		}
	}
}

// Tick polls the blocks after the watermark up to the chain height. The watermark moves to the
// height only when every decodable event of the range was reconciled; otherwise the next tick
// polls the same range again. Undecodable events are logged and skipped.
func (l *ContractListener) Tick(ctx context.Context) (err error) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	outcome := metrics.TickFailed
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener tick panicked: %v", rec)
			log.Error(ctx, "contract listener tick panicked", "panic", rec, "stack", string(debug.Stack()))
		}
		if err != nil {
			outcome = metrics.TickFailed
		}
		l.metrics.Tick(outcome)
	}()

	from := l.watermark.Load()
	height, err := l.source.CurrentHeight(ctx)
	if err != nil {
		return err
	}
	if height <= from {
		outcome = metrics.TickNoop
		return nil
	}

	events, err := l.collect(ctx, from+1, height)
	if err != nil {
		return err
	}

	failed := 0
	for _, ev := range events {
		if err := l.reconciler.Apply(ctx, ev); err != nil {
			l.metrics.Event(string(ev.Kind), metrics.EventFailed)
			if errors.Is(err, repositories.ErrStoreUnavailable) {
				return fmt.Errorf("reconciling %s: %w", ev, err)
			}
			log.Error(ctx, "event not reconciled", "err", err, "event", ev.String())
			failed++
			continue
		}
		l.metrics.Event(string(ev.Kind), metrics.EventReconciled)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d events in blocks [%d, %d] not reconciled", failed, len(events), from+1, height)
	}

	l.advance(height)
	outcome = metrics.TickOK
	log.Debug(ctx, "contract listener tick done", "fromBlock", from+1, "toBlock", height, "events", len(events))
	return nil
}

// collect queries and decodes the events of every kind in [from, to], sorted in chain order
func (l *ContractListener) collect(ctx context.Context, from, to uint64) ([]domain.VerificationEvent, error) {
	var events []domain.VerificationEvent
	for _, kind := range domain.EventKinds() {
		logs, err := l.source.QueryLogs(ctx, kind, from, to)
		if err != nil {
			return nil, err
		}
		for _, lg := range logs {
			ev, err := l.source.Decode(kind, lg)
			if err != nil {
				l.metrics.Event(string(kind), metrics.EventDecodeError)
				log.Error(ctx, "skipping undecodable event", "err", err, "kind", kind, "txHash", lg.TxHash.Hex(), "block", lg.BlockNumber)
				continue
			}
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
	return events, nil
}

// advance must be called holding tickMu
func (l *ContractListener) advance(height uint64) {
	if height <= l.watermark.Load() {
		return
	}
	l.watermark.Store(height)
	l.metrics.Watermark(height)
}
