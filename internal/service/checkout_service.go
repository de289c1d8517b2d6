package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"tiketi/config"
	"tiketi/internal/domain"
	"tiketi/internal/metrics"
	"tiketi/internal/models"
	"tiketi/pkg/checkout"
	"tiketi/pkg/payment"

	"github.com/rs/zerolog"
)

var (
	ErrShuttingDown    = errors.New("checkout service is shutting down")
	ErrHistoryDisabled = errors.New("checkout history is not configured")
)

// stateSuperseded is recorded for an attempt replaced by a newer submission
// before it reached a terminal state.
const stateSuperseded = "superseded"

// AttemptStore persists checkout history. *repository.CheckoutRepository
// satisfies it.
type AttemptStore interface {
	Save(ctx context.Context, a *models.CheckoutAttempt) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.CheckoutAttempt, error)
	ListRecent(ctx context.Context, state string, limit int) ([]models.CheckoutAttempt, error)
}

// Broadcaster pushes session updates to connected UIs. *ws.Hub satisfies it.
type Broadcaster interface {
	Broadcast(key string, payload interface{})
}

// Event is what the UI receives on its websocket.
type Event struct {
	Type     string           `json:"type"` // "snapshot" on connect, then "checkout"
	Instance string           `json:"instance"`
	Session  checkout.Session `json:"session"`
}

// CheckoutService keeps one checkout controller per customer UI instance
// and turns controller changes into broadcasts, metrics and history rows.
type CheckoutService struct {
	gw           payment.Gateway
	cfg          checkout.Config
	historyLimit int
	store        AttemptStore
	hub          Broadcaster
	log          zerolog.Logger
	ctrlOpts     []checkout.Option

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	saveMu     sync.RWMutex
	saves      chan *models.CheckoutAttempt
	savesShut  bool
	saveWorker sync.WaitGroup
}

type entry struct {
	ctrl     *checkout.Controller
	userID   uint
	instance string
	key      string
	last     checkout.Session // guarded by the controller's lock
}

// NewCheckoutService wires the controllers to their side effects. store and
// hub may be nil. opts are applied to every controller it creates.
func NewCheckoutService(gw payment.Gateway, cfg config.CheckoutConfig, store AttemptStore, hub Broadcaster, log zerolog.Logger, opts ...checkout.Option) *CheckoutService {
	s := &CheckoutService{
		gw: gw,
		cfg: checkout.Config{
			PollInterval:    cfg.PollInterval,
			Timeout:         cfg.Timeout,
			MaxPollFailures: cfg.MaxPollFailures,
		},
		historyLimit: cfg.HistoryLimit,
		store:        store,
		hub:          hub,
		log:          log,
		ctrlOpts:     opts,
		sessions:     make(map[string]*entry),
	}
	if s.historyLimit <= 0 {
		s.historyLimit = 20
	}
	if store != nil {
		s.saves = make(chan *models.CheckoutAttempt, 256)
		s.saveWorker.Add(1)
		go s.runSaves()
	}
	return s
}

func (s *CheckoutService) entryFor(userID uint, instance string, create bool) (*entry, error) {
	key := domain.SessionKey(userID, instance)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}
	if e, ok := s.sessions[key]; ok || !create {
		return e, nil
	}
	e := &entry{userID: userID, instance: instance, key: key}
	opts := append([]checkout.Option{
		checkout.WithLogger(s.log.With().Str("checkout", key).Logger()),
		checkout.WithObserver(func(sess checkout.Session) { s.observe(e, sess) }),
	}, s.ctrlOpts...)
	e.ctrl = checkout.New(s.gw, s.cfg, opts...)
	s.sessions[key] = e
	return e, nil
}

// Submit starts a checkout for the customer's UI instance, superseding any
// session that instance already had.
func (s *CheckoutService) Submit(ctx context.Context, userID uint, instance string, req checkout.SubmitRequest) (checkout.Session, error) {
	e, err := s.entryFor(userID, instance, true)
	if err != nil {
		return checkout.Session{}, err
	}
	return e.ctrl.Submit(ctx, req)
}

// Snapshot reports false when the instance never submitted or was released.
func (s *CheckoutService) Snapshot(userID uint, instance string) (checkout.Session, bool) {
	e, _ := s.entryFor(userID, instance, false)
	if e == nil {
		return checkout.Session{}, false
	}
	return e.ctrl.Snapshot(), true
}

func (s *CheckoutService) Cancel(userID uint, instance string) (checkout.Session, bool) {
	e, _ := s.entryFor(userID, instance, false)
	if e == nil {
		return checkout.Session{}, false
	}
	e.ctrl.Cancel()
	return e.ctrl.Snapshot(), true
}

// Release is called when the checkout UI goes away: any live session is
// cancelled and the instance forgotten.
func (s *CheckoutService) Release(userID uint, instance string) bool {
	key := domain.SessionKey(userID, instance)
	s.mu.Lock()
	e, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.ctrl.Cancel()
	return true
}

// InitialEvent is sent to a websocket right after it connects.
func (s *CheckoutService) InitialEvent(userID uint, instance string) interface{} {
	sess, ok := s.Snapshot(userID, instance)
	if !ok {
		return nil
	}
	return Event{Type: "snapshot", Instance: instance, Session: sess}
}

func (s *CheckoutService) History(ctx context.Context, userID uint) ([]models.CheckoutAttempt, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListByUser(ctx, userID, s.historyLimit)
}

// Recent lists attempts across all customers for back-office use.
func (s *CheckoutService) Recent(ctx context.Context, state string, limit int) ([]models.CheckoutAttempt, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListRecent(ctx, state, limit)
}

// ActiveCount returns how many UI instances currently hold a controller.
func (s *CheckoutService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown cancels every live session and flushes pending history writes.
func (s *CheckoutService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Cancel()
	}
	if s.saves != nil {
		s.saveMu.Lock()
		if !s.savesShut {
			s.savesShut = true
			close(s.saves)
		}
		s.saveMu.Unlock()
		s.saveWorker.Wait()
	}
}

// observe runs under the controller's lock; nothing here may block.
func (s *CheckoutService) observe(e *entry, cur checkout.Session) {
	prev := e.last
	e.last = cur
	if prev.ID != "" && prev.ID != cur.ID {
		if prev.State.Active() {
			metrics.CheckoutActive.Dec()
			metrics.CheckoutFinishedTotal.WithLabelValues(stateSuperseded, "").Inc()
			s.enqueueSave(e, prev, stateSuperseded, cur.StartedAt)
		}
		prev = checkout.Session{}
	}
	if prev.ID == "" {
		prev.State = checkout.StateIdle
	}

	if cur.State == checkout.StateInitiating && prev.State != checkout.StateInitiating {
		metrics.CheckoutStartedTotal.Inc()
		metrics.CheckoutActive.Inc()
	}
	if cur.ConsecutivePollFailures > prev.ConsecutivePollFailures {
		metrics.CheckoutPollFailuresTotal.Add(float64(cur.ConsecutivePollFailures - prev.ConsecutivePollFailures))
	}
	if prev.State.Active() && !cur.State.Active() {
		metrics.CheckoutActive.Dec()
	}
	if cur.State != prev.State && !cur.State.Active() {
		label := cur.State.String()
		if cur.State == checkout.StateIdle {
			label = "cancelled"
		}
		metrics.CheckoutFinishedTotal.WithLabelValues(label, string(cur.ErrorKind)).Inc()
	}

	if s.hub != nil {
		s.hub.Broadcast(e.key, Event{Type: "checkout", Instance: e.instance, Session: cur})
	}
	if cur.State != prev.State || cur.CorrelationID != prev.CorrelationID || cur.Status != prev.Status {
		s.enqueueSave(e, cur, cur.State.String(), cur.UpdatedAt)
	}
}

func (s *CheckoutService) enqueueSave(e *entry, sess checkout.Session, state string, at time.Time) {
	if s.saves == nil {
		return
	}
	row := &models.CheckoutAttempt{
		SessionID:        sess.ID,
		UserID:           e.userID,
		Instance:         e.instance,
		AmountKES:        sess.Amount,
		AccountReference: sess.AccountReference,
		Description:      sess.Description,
		EventID:          sess.EventID,
		TicketQuantity:   sess.TicketQuantity,
		CorrelationID:    sess.CorrelationID,
		State:            state,
		ErrorKind:        string(sess.ErrorKind),
		Message:          sess.Message,
		StartedAt:        sess.StartedAt,
	}
	if sess.MSISDN != "" {
		row.MSISDN = payment.MaskMSISDN(sess.MSISDN)
	}
	if !sess.State.Active() {
		finished := at
		row.FinishedAt = &finished
	}

	s.saveMu.RLock()
	defer s.saveMu.RUnlock()
	if s.savesShut {
		return
	}
	select {
	case s.saves <- row:
	default:
		s.log.Warn().Str("session", sess.ID).Msg("history queue full, dropping update")
	}
}

func (s *CheckoutService) runSaves() {
	defer s.saveWorker.Done()
	for row := range s.saves {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Save(ctx, row); err != nil {
			s.log.Error().Err(err).Str("session", row.SessionID).Str("state", row.State).Msg("save checkout attempt")
		}
		cancel()
	}
}
