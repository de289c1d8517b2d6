// Package checkout drives one M-Pesa STK push from submission to a
// terminal outcome: initiate, poll the status endpoint on a fixed interval,
// and give up after a bounded window.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tiketi/pkg/clock"
	"tiketi/pkg/payment"
)

// ErrCancelled is returned by Submit when Cancel ran before initiation finished.
var ErrCancelled = errors.New("checkout: session cancelled")

// Config holds the polling policy. The interval and failure threshold are
// fixed; there is no backoff.
type Config struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxPollFailures int // the session errors once consecutive failures exceed this
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    3 * time.Second,
		Timeout:         2 * time.Minute,
		MaxPollFailures: 5,
	}
}

type Option func(*Controller)

func WithClock(clk clock.Clock) Option { return func(c *Controller) { c.clock = clk } }

func WithLogger(l zerolog.Logger) Option { return func(c *Controller) { c.log = l } }

// WithObserver registers fn to receive a copy of the session after every
// change. fn runs with the controller locked and must not call back into it.
func WithObserver(fn func(Session)) Option { return func(c *Controller) { c.observe = fn } }

func WithIDGenerator(fn func() string) Option { return func(c *Controller) { c.newID = fn } }

// Controller owns the single checkout session of one checkout UI instance.
// A new Submit supersedes whatever the previous one left running.
type Controller struct {
	gw      payment.Gateway
	cfg     Config
	clock   clock.Clock
	log     zerolog.Logger
	observe func(Session)
	newID   func() string

	mu      sync.Mutex
	session Session
	current *attempt
}

// attempt is the set of resources acquired for one session: the timeout
// guard, the poll timer and the context of outstanding requests. All of
// them are released together by endLocked.
type attempt struct {
	sessionID    string
	bearer       string
	ctx          context.Context
	cancel       context.CancelFunc
	pollTimer    clock.Timer
	timeoutTimer clock.Timer
	inflight     bool
	closed       bool
	err          error
}

func New(gw payment.Gateway, cfg Config, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxPollFailures <= 0 {
		cfg.MaxPollFailures = def.MaxPollFailures
	}
	c := &Controller{
		gw:    gw,
		cfg:   cfg,
		clock: clock.Real(),
		log:   zerolog.Nop(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = Session{State: StateIdle}
	return c
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Submit starts a new session. It blocks until the initiation request
// settles; polling and the timeout guard then continue in the background.
// A bad phone number is rejected before any request is made.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (Session, error) {
	msisdn, phoneErr := payment.ParseMSISDN(req.Phone)

	c.mu.Lock()
	if c.current != nil {
		c.log.Info().Str("session", c.current.sessionID).Msg("superseded by new submission")
		c.endLocked(c.current, ErrSuperseded)
	}
	now := c.clock.Now()
	c.session = Session{
		ID:               c.newID(),
		State:            StateIdle,
		RawPhoneInput:    req.Phone,
		MSISDN:           msisdn,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		Description:      req.Description,
		EventID:          req.EventID,
		TicketQuantity:   req.TicketQuantity,
		StartedAt:        now,
		UpdatedAt:        now,
	}
	if phoneErr != nil {
		err := &Error{Kind: KindValidation, Message: payment.InvalidPhoneMessage, Err: phoneErr}
		c.session.State = StateError
		c.session.Message = err.Message
		c.session.ErrorKind = err.Kind
		c.log.Info().Str("session", c.session.ID).Msg("rejected phone number")
		c.emitLocked()
		snap := c.session
		c.mu.Unlock()
		return snap, err
	}

	a := &attempt{sessionID: c.session.ID, bearer: req.BearerToken}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.timeoutTimer = c.clock.AfterFunc(c.cfg.Timeout, func() { c.expire(a) })
	c.current = a
	c.session.State = StateInitiating
	c.log.Info().Str("session", a.sessionID).Str("phone", payment.MaskMSISDN(msisdn)).
		Int64("amount", req.Amount).Msg("initiating stk push")
	c.emitLocked()
	c.mu.Unlock()

	initCtx, cancelInit := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancelInit)
	res, err := c.gw.Initiate(initCtx, payment.InitiationRequest{
		MSISDN:           msisdn,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		Description:      req.Description,
		EventID:          req.EventID,
		TicketQuantity:   req.TicketQuantity,
		BearerToken:      req.BearerToken,
	})
	stop()
	cancelInit()

	c.mu.Lock()
	defer c.mu.Unlock()
	if a.closed {
		if c.session.ID == a.sessionID {
			return c.session, a.err
		}
		return Session{ID: a.sessionID, State: StateIdle, Message: msgCancelled}, a.err
	}
	if err != nil {
		ce := &Error{Kind: KindInitiation, Message: initiationMessage(err), Err: err}
		c.finishLocked(a, StateError, ce.Message, ce)
		return c.session, ce
	}
	if res == nil {
		res = &payment.InitiationResult{}
	}
	if res.Rejected() {
		msg := res.RejectionMessage()
		if msg == "" {
			msg = msgInitiationFailed
		}
		ce := &Error{Kind: KindInitiation, Message: msg, Err: fmt.Errorf("gateway response code %s", res.ResponseCode)}
		c.finishLocked(a, StateError, msg, ce)
		return c.session, ce
	}

	c.session.State = StateAwaitingConfirmation
	c.session.CorrelationID = res.CorrelationID
	c.session.Message = res.Message
	if c.session.Message == "" {
		c.session.Message = msgWaiting
	}
	if res.CorrelationID == "" {
		c.session.Degraded = true
		c.session.ErrorKind = KindDegradedInitiation
		c.session.Message = msgDegraded
		c.log.Warn().Str("session", a.sessionID).Msg("initiation returned no checkout request id; not polling")
	} else {
		a.pollTimer = c.clock.AfterFunc(c.cfg.PollInterval, func() { c.poll(a) })
		c.log.Info().Str("session", a.sessionID).Str("correlation_id", res.CorrelationID).Msg("awaiting confirmation")
	}
	c.touchLocked()
	c.emitLocked()
	return c.session, nil
}

// Cancel discards an in-progress session and releases its timers. It is
// a no-op when nothing is in progress.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.current
	if a == nil || !c.session.State.Active() {
		return
	}
	c.endLocked(a, ErrCancelled)
	c.session.State = StateIdle
	c.session.Message = msgCancelled
	c.touchLocked()
	c.log.Info().Str("session", a.sessionID).Msg("cancelled")
	c.emitLocked()
}

func (c *Controller) poll(a *attempt) {
	c.mu.Lock()
	if a.closed || c.session.State != StateAwaitingConfirmation {
		c.mu.Unlock()
		return
	}
	// Re-arm first so ticks keep a fixed cadence regardless of latency.
	a.pollTimer = c.clock.AfterFunc(c.cfg.PollInterval, func() { c.poll(a) })
	if a.inflight {
		c.log.Debug().Str("session", a.sessionID).Msg("status request still outstanding, skipping tick")
		c.mu.Unlock()
		return
	}
	a.inflight = true
	id := c.session.CorrelationID
	c.mu.Unlock()

	res, err := c.gw.Status(a.ctx, id, a.bearer)

	c.mu.Lock()
	defer c.mu.Unlock()
	a.inflight = false
	if a.closed {
		return
	}
	if err != nil {
		c.session.ConsecutivePollFailures++
		n := c.session.ConsecutivePollFailures
		c.log.Warn().Err(err).Str("session", a.sessionID).Int("failures", n).Msg("status poll failed")
		if n > c.cfg.MaxPollFailures {
			ce := &Error{Kind: KindPollTransport, Message: msgPollExhausted, Err: err}
			c.finishLocked(a, StateError, ce.Message, ce)
			return
		}
		c.touchLocked()
		c.emitLocked()
		return
	}
	if res == nil {
		res = &payment.StatusResult{}
	}
	changed := c.session.ConsecutivePollFailures != 0
	c.session.ConsecutivePollFailures = 0
	if res.NotModified {
		if changed {
			c.touchLocked()
			c.emitLocked()
		}
		return
	}
	switch res.Outcome() {
	case payment.OutcomeSucceeded:
		c.session.Status = res.Status
		c.finishLocked(a, StateSucceeded, msgSucceeded, nil)
		return
	case payment.OutcomeFailed:
		c.session.Status = res.Status
		c.finishLocked(a, StateFailed, msgFailed, nil)
		return
	}
	if res.Status != "" && res.Status != c.session.Status {
		c.session.Status = res.Status
		c.session.Message = res.Status
		changed = true
	}
	if changed {
		c.touchLocked()
		c.emitLocked()
	}
}

func (c *Controller) expire(a *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.closed || !c.session.State.Active() {
		return
	}
	c.finishLocked(a, StateTimedOut, msgTimedOut, &Error{Kind: KindTimeout, Message: msgTimedOut})
}

// finishLocked moves the session to a terminal state and releases the attempt.
func (c *Controller) finishLocked(a *attempt, state State, msg string, ce *Error) {
	var err error
	if ce != nil {
		err = ce
		c.session.ErrorKind = ce.Kind
	}
	c.endLocked(a, err)
	c.session.State = state
	c.session.Message = msg
	c.touchLocked()
	c.log.Info().Str("session", a.sessionID).Str("state", state.String()).
		Str("correlation_id", c.session.CorrelationID).Msg("checkout finished")
	c.emitLocked()
}

// endLocked is the only place an attempt's timers and requests are released.
// Callbacks that fire afterwards see closed and do nothing.
func (c *Controller) endLocked(a *attempt, err error) {
	if a.closed {
		return
	}
	a.closed = true
	a.err = err
	if a.pollTimer != nil {
		a.pollTimer.Stop()
	}
	if a.timeoutTimer != nil {
		a.timeoutTimer.Stop()
	}
	a.cancel()
	if c.current == a {
		c.current = nil
	}
}

func (c *Controller) touchLocked() {
	c.session.UpdatedAt = c.clock.Now()
}

func (c *Controller) emitLocked() {
	if c.observe != nil {
		c.observe(c.session)
	}
}

func initiationMessage(err error) string {
	var httpErr *payment.HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	return msgInitiationFailed
}
