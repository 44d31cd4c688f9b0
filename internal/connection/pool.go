package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pointwatch/pointwatch/internal/metrics"
	"github.com/pointwatch/pointwatch/internal/state"
)

// Pool supervises the set of connection slots.
type Pool interface {
	// Start creates one slot per proxy descriptor (or a single direct
	// slot) and launches their supervisors. Returns once every slot has
	// been instructed to begin connecting; it does not wait for any slot
	// to reach Open.
	Start(ctx context.Context) error

	// Shutdown transitions every slot to ShutDown, closing transports
	// and cancelling all timers. Idempotent. ctx bounds how long the call
	// waits for supervisors to exit; the updates channel closes only once
	// they all have, so a timed-out Shutdown never races a late frame.
	Shutdown(ctx context.Context) error

	// Updates returns the channel of authoritative server point updates,
	// consumed by the optional history archive. Closed on shutdown.
	Updates() <-chan PointUpdate

	// Totals returns the last server-reported point totals.
	Totals() (total, today float64)

	// SlotStats returns per-slot health for the health endpoint.
	SlotStats() []SlotStat
}

// PointUpdate is one authoritative server points message.
type PointUpdate struct {
	ID         uuid.UUID
	SlotID     string
	Total      float64
	Today      float64
	ReceivedAt time.Time
}

// SlotStat holds health information for a single slot.
type SlotStat struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Proxied   bool   `json:"proxied"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Attempts  int    `json:"attempts"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	ServiceURL      string   // ws endpoint (scheme + host)
	ProtocolVersion string   // version query param
	Token           string   // bearer token shared by all slots
	Proxies         []string // proxy URIs; empty means one direct slot

	PingInterval       time.Duration
	HandshakeTimeout   time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	SweepInterval      time.Duration
	BufferSize         int
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		PingInterval:       10 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		ReconnectBaseDelay: 5 * time.Second,
		ReconnectMaxDelay:  10 * time.Minute,
		SweepInterval:      60 * time.Second,
		BufferSize:         64,
	}
}

// slot is one connection state machine. The proxy descriptor and token are
// fixed for the slot's lifetime; the client is replaced wholesale on every
// reconnect.
type slot struct {
	id    string
	index int
	proxy *url.URL // nil means direct

	mu       sync.Mutex
	client   Client
	state    State
	attempts int
}

func (s *slot) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *slot) snapshot() (State, Client, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.client, s.attempts
}

// pool implements the Pool interface.
type pool struct {
	cfg    PoolConfig
	store  *state.Store
	logger *slog.Logger

	slotsMu sync.RWMutex
	slots   []*slot
	updates chan PointUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once

	// In-memory mirror of the last server-reported totals.
	totalsMu    sync.RWMutex
	pointsTotal float64
	pointsToday float64
}

// NewPool creates a new connection pool.
func NewPool(cfg PoolConfig, store *state.Store, logger *slog.Logger) Pool {
	if logger == nil {
		logger = slog.Default()
	}

	return &pool{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		updates: make(chan PointUpdate, 256),
	}
}

// Start launches one supervisor per slot plus the sweep loop.
func (p *pool) Start(ctx context.Context) error {
	if p.cfg.Token == "" {
		return ErrMissingToken
	}

	wsURL, err := BuildURL(p.cfg.ServiceURL, p.cfg.Token, p.cfg.ProtocolVersion)
	if err != nil {
		return err
	}

	descriptors := make([]*url.URL, 0, len(p.cfg.Proxies))
	for i, raw := range p.cfg.Proxies {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy descriptor %d: %w", i, err)
		}
		descriptors = append(descriptors, u)
	}
	if len(descriptors) == 0 {
		// No proxies configured: exactly one direct connection.
		descriptors = append(descriptors, nil)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	// Build the full slot slice before any goroutine can observe it.
	slots := make([]*slot, 0, len(descriptors))
	for i, proxy := range descriptors {
		slots = append(slots, &slot{
			id:    uuid.NewString(),
			index: i,
			proxy: proxy,
			state: StateConnecting,
		})
	}
	p.slotsMu.Lock()
	p.slots = slots
	p.slotsMu.Unlock()

	for _, s := range slots {
		p.wg.Add(1)
		go p.supervise(s, wsURL)
	}

	p.wg.Add(1)
	go p.sweepLoop()

	metrics.ConnectionsConfigured.Set(float64(len(slots)))

	p.logger.Info("connection pool started",
		"slots", len(slots),
		"proxied", len(p.cfg.Proxies),
	)

	return nil
}

// Shutdown stops all slots and waits for their supervisors to exit.
func (p *pool) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.logger.Info("shutting down connection pool")

		if p.cancel != nil {
			p.cancel()
		}

		// The updates channel must not close while a supervisor could
		// still publish, so it closes in the waiter after Wait returns
		// even when the caller's context expires first.
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(p.updates)
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("connection pool stopped")
		case <-ctx.Done():
			p.logger.Warn("pool shutdown timeout, slots still draining")
		}
	})

	return nil
}

// Updates returns the point update channel.
func (p *pool) Updates() <-chan PointUpdate {
	return p.updates
}

// Totals returns the last server-reported totals.
func (p *pool) Totals() (float64, float64) {
	p.totalsMu.RLock()
	defer p.totalsMu.RUnlock()
	return p.pointsTotal, p.pointsToday
}

// SlotStats returns per-slot health information.
func (p *pool) SlotStats() []SlotStat {
	p.slotsMu.RLock()
	slots := p.slots
	p.slotsMu.RUnlock()

	stats := make([]SlotStat, 0, len(slots))
	for _, s := range slots {
		st, client, attempts := s.snapshot()
		stats = append(stats, SlotStat{
			ID:        s.id,
			Index:     s.index,
			Proxied:   s.proxy != nil,
			State:     string(st),
			Connected: client != nil && client.IsConnected(),
			Attempts:  attempts,
		})
	}
	return stats
}

// supervise drives one slot's state machine until pool shutdown. Each
// failed session schedules the next attempt on a capped exponential
// backoff; a successful Open resets the attempt counter.
func (p *pool) supervise(s *slot, wsURL string) {
	defer p.wg.Done()
	defer s.setState(StateShutDown)

	logger := p.logger.With("slot", s.index, "proxied", s.proxy != nil)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		s.setState(StateConnecting)

		client := NewClient(ClientConfig{
			URL:              wsURL,
			Proxy:            s.proxy,
			HandshakeTimeout: p.cfg.HandshakeTimeout,
			PingInterval:     p.cfg.PingInterval,
			BufferSize:       p.cfg.BufferSize,
			OnPing:           p.recordPing,
		}, logger)

		s.mu.Lock()
		s.client = client
		s.mu.Unlock()

		if err := client.Connect(p.ctx); err != nil {
			logger.Warn("connect failed", "error", err)
			s.setState(StateClosed)
			if !p.waitBackoff(s, logger) {
				return
			}
			continue
		}

		s.setState(StateOpen)
		s.mu.Lock()
		s.attempts = 0
		s.mu.Unlock()
		logger.Info("connection open")

		p.readSession(s, client, logger)

		client.Close()
		s.setState(StateClosed)

		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if !p.waitBackoff(s, logger) {
			return
		}
	}
}

// readSession consumes one client's messages until the transport fails or
// the pool shuts down.
func (p *pool) readSession(s *slot, client Client, logger *slog.Logger) {
	for {
		select {
		case <-p.ctx.Done():
			return

		case err := <-client.Errors():
			logger.Warn("connection error", "error", err)
			return

		case msg, ok := <-client.Messages():
			// A buffered frame can win the select race against a
			// ready Done case; drop it once shutdown has begun.
			if !ok || p.ctx.Err() != nil {
				return
			}
			p.handleMessage(s, msg, logger)
		}
	}
}

// handleMessage parses one inbound frame. Frames carrying both numeric
// points fields are authoritative server state; everything else is passed
// over. Malformed frames are logged and dropped, never fatal.
func (p *pool) handleMessage(s *slot, msg Message, logger *slog.Logger) {
	var frame pointsFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		metrics.MessagesTotal.WithLabelValues("malformed").Inc()
		logger.Debug("malformed frame dropped", "error", err)
		return
	}

	if frame.PointsTotal == nil || frame.PointsToday == nil {
		metrics.MessagesTotal.WithLabelValues("other").Inc()
		return
	}

	total, today := *frame.PointsTotal, *frame.PointsToday

	p.totalsMu.Lock()
	p.pointsTotal = total
	p.pointsToday = today
	p.totalsMu.Unlock()

	// Fire-and-forget: a store write failure is logged inside the store,
	// never surfaced here.
	p.store.Merge(map[string]any{
		state.KeyPointsTotal: total,
		state.KeyPointsToday: today,
		state.KeyLastUpdated: state.ISOTime(msg.ReceivedAt),
	})

	metrics.MessagesTotal.WithLabelValues("points").Inc()
	metrics.PointsTotal.Set(total)
	metrics.PointsToday.Set(today)

	update := PointUpdate{
		ID:         uuid.New(),
		SlotID:     s.id,
		Total:      total,
		Today:      today,
		ReceivedAt: msg.ReceivedAt,
	}
	select {
	case p.updates <- update:
	default:
		metrics.HistoryDroppedTotal.Inc()
	}

	logger.Debug("points update",
		"total", total,
		"today", today,
	)
}

// recordPing stamps the heartbeat time into the store.
func (p *pool) recordPing(t time.Time) {
	p.store.Merge(map[string]any{
		state.KeyLastPingDate: state.ISOTime(t),
	})
}

// waitBackoff sleeps for the slot's next backoff delay and bumps its
// attempt counter. Returns false when the pool is shutting down.
func (p *pool) waitBackoff(s *slot, logger *slog.Logger) bool {
	s.mu.Lock()
	attempt := s.attempts
	s.attempts++
	s.mu.Unlock()

	delay := backoffDelay(p.cfg.ReconnectBaseDelay, p.cfg.ReconnectMaxDelay, attempt)
	metrics.ReconnectsTotal.Inc()
	logger.Info("reconnect scheduled", "attempt", attempt+1, "delay", delay)

	select {
	case <-p.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay computes min(base * 2^attempt, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return max
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// sweepLoop periodically logs per-slot health. Slots self-heal through
// their supervisors; the sweep never removes a slot.
func (p *pool) sweepLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *pool) sweep() {
	p.slotsMu.RLock()
	slots := p.slots
	p.slotsMu.RUnlock()

	open := 0
	for _, s := range slots {
		st, client, attempts := s.snapshot()
		connected := client != nil && client.IsConnected()
		if connected {
			open++
		}
		if !connected {
			p.logger.Debug("sweep: slot not open",
				"slot", s.index,
				"state", st,
				"attempts", attempts,
			)
		}
	}

	metrics.ConnectionsOpen.Set(float64(open))
	p.logger.Info("sweep complete", "open", open, "slots", len(slots))
}
