package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Resolver — один тик опроса: спросить провайдера и сохранить результат.
// true — номер получен (или опрашивать больше нечего), опрос останавливается.
type Resolver interface {
	ResolveTrackNumber(ctx context.Context, shipmentID string) (bool, error)
}

// Poller ведёт фоновый опрос трек-номеров, которых провайдер ещё не
// выдал. На одно отправление — не больше одного активного таймера;
// повторный Arm сбрасывает прежний. Состояние только в памяти: после
// рестарта процесса незавершённые опросы молча пропадают.
type Poller struct {
	resolver Resolver

	interval    time.Duration
	maxAttempts int

	mu      sync.Mutex
	pending map[string]*pendingPoll
	closed  bool

	wg sync.WaitGroup

	totalArmed     atomic.Int64
	totalResolved  atomic.Int64
	totalExhausted atomic.Int64
	totalErrors    atomic.Int64
	lastErrorMu    sync.Mutex
	lastError      string
}

type pendingPoll struct {
	cancel context.CancelFunc
}

func New(resolver Resolver) *Poller {
	return &Poller{
		resolver:    resolver,
		interval:    10 * time.Second,
		maxAttempts: 12,
		pending:     map[string]*pendingPoll{},
	}
}

func (p *Poller) WithSettings(interval time.Duration, maxAttempts int) *Poller {
	if interval > 0 {
		p.interval = interval
	}
	if maxAttempts > 0 {
		p.maxAttempts = maxAttempts
	}
	return p
}

// Arm взводит опрос для отправления. Уже взведённый таймер для того же
// id отменяется — активным остаётся ровно один.
func (p *Poller) Arm(shipmentID string) {
	if shipmentID == "" {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if prev, ok := p.pending[shipmentID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &pendingPoll{cancel: cancel}
	p.pending[shipmentID] = entry
	p.mu.Unlock()

	p.totalArmed.Add(1)
	p.wg.Add(1)
	go p.run(ctx, shipmentID, entry)
}

// Disarm снимает опрос; для незнакомого id — no-op.
func (p *Poller) Disarm(shipmentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.pending[shipmentID]; ok {
		entry.cancel()
		delete(p.pending, shipmentID)
	}
}

// Shutdown снимает все таймеры и дожидается выхода горутин, чтобы не
// дёргать уже разобранное хранилище.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	p.closed = true
	for id, entry := range p.pending {
		entry.cancel()
		delete(p.pending, id)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Active — количество взведённых таймеров.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

type Stats struct {
	Active         int    `json:"active"`
	TotalArmed     int64  `json:"totalArmed"`
	TotalResolved  int64  `json:"totalResolved"`
	TotalExhausted int64  `json:"totalExhausted"`
	TotalErrors    int64  `json:"totalErrors"`
	LastError      string `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		Active:         p.Active(),
		TotalArmed:     p.totalArmed.Load(),
		TotalResolved:  p.totalResolved.Load(),
		TotalExhausted: p.totalExhausted.Load(),
		TotalErrors:    p.totalErrors.Load(),
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) run(ctx context.Context, shipmentID string, entry *pendingPoll) {
	defer p.wg.Done()

	t := time.NewTicker(p.interval)
	defer t.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		done, err := p.resolver.ResolveTrackNumber(ctx, shipmentID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.totalErrors.Add(1)
			p.lastErrorMu.Lock()
			p.lastError = err.Error()
			p.lastErrorMu.Unlock()
			slog.Warn("track number poll failed", "shipment_id", shipmentID, "attempt", attempt, "error", err.Error())
		}
		if done {
			p.totalResolved.Add(1)
			slog.Info("track number resolved", "shipment_id", shipmentID, "attempt", attempt)
			p.remove(shipmentID, entry)
			return
		}
	}

	// Исчерпание тихое: запись остаётся без трек-номера, наружу ошибка
	// не поднимается.
	p.totalExhausted.Add(1)
	slog.Info("track number poll exhausted", "shipment_id", shipmentID, "attempts", p.maxAttempts)
	p.remove(shipmentID, entry)
}

// remove убирает запись из таблицы, только если её не успел заменить
// повторный Arm.
func (p *Poller) remove(shipmentID string, entry *pendingPoll) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.pending[shipmentID]; ok && cur == entry {
		delete(p.pending, shipmentID)
	}
}
