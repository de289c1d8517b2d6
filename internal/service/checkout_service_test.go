package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiketi/config"
	"tiketi/internal/metrics"
	"tiketi/internal/models"
	"tiketi/pkg/checkout"
	"tiketi/pkg/clock"
	"tiketi/pkg/payment"
)

type memStore struct {
	mu   sync.Mutex
	rows []models.CheckoutAttempt
}

func (m *memStore) Save(_ context.Context, a *models.CheckoutAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID uint, limit int) ([]models.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CheckoutAttempt
	for _, r := range m.rows {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListRecent(_ context.Context, state string, limit int) ([]models.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CheckoutAttempt
	for _, r := range m.rows {
		if (state == "" || r.State == state) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

// latest returns the last saved row per session, which is what the upsert
// leaves in the table.
func (m *memStore) latest() map[string]models.CheckoutAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.CheckoutAttempt)
	for _, r := range m.rows {
		out[r.SessionID] = r
	}
	return out
}

type recordingHub struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (h *recordingHub) Broadcast(key string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = make(map[string][]Event)
	}
	h.events[key] = append(h.events[key], payload.(Event))
}

func (h *recordingHub) states(key string) []checkout.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []checkout.State
	for _, e := range h.events[key] {
		out = append(out, e.Session.State)
	}
	return out
}

func newTestService(t *testing.T, gw payment.Gateway, store AttemptStore) (*CheckoutService, *clock.Fake, *recordingHub) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	hub := &recordingHub{}
	cfg := config.Default().Checkout
	svc := NewCheckoutService(gw, cfg, store, hub, zerolog.Nop(), checkout.WithClock(clk))
	t.Cleanup(svc.Shutdown)
	return svc, clk, hub
}

func submitReq() checkout.SubmitRequest {
	return checkout.SubmitRequest{Phone: "0712345678", Amount: 1500, AccountReference: "EVT-9", Description: "2 tickets", EventID: "9", TicketQuantity: 2}
}

func TestCheckoutService_SucceedsAndRecordsHistory(t *testing.T) {
	store := &memStore{}
	svc, clk, hub := newTestService(t, payment.NewStubGateway(2), store)

	startedBefore := testutil.ToFloat64(metrics.CheckoutStartedTotal)
	activeBefore := testutil.ToFloat64(metrics.CheckoutActive)

	sess, err := svc.Submit(context.Background(), 7, "tab-1", submitReq())
	require.NoError(t, err)
	assert.Equal(t, checkout.StateAwaitingConfirmation, sess.State)
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(metrics.CheckoutActive))

	clk.Advance(3 * time.Second)
	snap, ok := svc.Snapshot(7, "tab-1")
	require.True(t, ok)
	assert.Equal(t, "pending", snap.Status)

	clk.Advance(3 * time.Second)
	snap, _ = svc.Snapshot(7, "tab-1")
	assert.Equal(t, checkout.StateSucceeded, snap.State)

	assert.Equal(t, []checkout.State{
		checkout.StateInitiating,
		checkout.StateAwaitingConfirmation,
		checkout.StateAwaitingConfirmation,
		checkout.StateSucceeded,
	}, hub.states("7:tab-1"))
	assert.Equal(t, startedBefore+1, testutil.ToFloat64(metrics.CheckoutStartedTotal))
	assert.Equal(t, activeBefore, testutil.ToFloat64(metrics.CheckoutActive))

	svc.Shutdown()
	row := store.latest()[sess.ID]
	assert.Equal(t, "succeeded", row.State)
	assert.EqualValues(t, 7, row.UserID)
	assert.Equal(t, "tab-1", row.Instance)
	assert.Equal(t, "254******678", row.MSISDN)
	assert.EqualValues(t, 1500, row.AmountKES)
	assert.NotEmpty(t, row.CorrelationID)
	require.NotNil(t, row.FinishedAt)
}

func TestCheckoutService_InstancesAreIndependent(t *testing.T) {
	svc, clk, _ := newTestService(t, payment.NewStubGateway(100), nil)

	_, err := svc.Submit(context.Background(), 7, "tab-1", submitReq())
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), 7, "tab-2", submitReq())
	require.NoError(t, err)
	assert.Equal(t, 2, svc.ActiveCount())

	snap, ok := svc.Cancel(7, "tab-1")
	require.True(t, ok)
	assert.Equal(t, checkout.StateIdle, snap.State)

	clk.Advance(3 * time.Second)
	other, _ := svc.Snapshot(7, "tab-2")
	assert.Equal(t, checkout.StateAwaitingConfirmation, other.State)
	assert.Equal(t, "pending", other.Status)

	_, ok = svc.Snapshot(8, "tab-1")
	assert.False(t, ok)
}

func TestCheckoutService_SupersededAttemptIsClosedInHistory(t *testing.T) {
	store := &memStore{}
	svc, _, _ := newTestService(t, payment.NewStubGateway(100), store)

	first, err := svc.Submit(context.Background(), 3, "default", submitReq())
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), 3, "default", submitReq())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	svc.Shutdown()
	rows := store.latest()
	assert.Equal(t, stateSuperseded, rows[first.ID].State)
	require.NotNil(t, rows[first.ID].FinishedAt)
	assert.Equal(t, "idle", rows[second.ID].State, "shutdown cancels the live session")
}

func TestCheckoutService_InvalidPhoneIsRecordedWithoutNumber(t *testing.T) {
	store := &memStore{}
	svc, _, _ := newTestService(t, payment.NewStubGateway(1), store)

	req := submitReq()
	req.Phone = "12345"
	sess, err := svc.Submit(context.Background(), 4, "default", req)
	require.Error(t, err)
	assert.Equal(t, checkout.KindValidation, checkout.KindOf(err))

	svc.Shutdown()
	row := store.latest()[sess.ID]
	assert.Equal(t, "error", row.State)
	assert.Equal(t, "validation", row.ErrorKind)
	assert.Empty(t, row.MSISDN)
}

func TestCheckoutService_Release(t *testing.T) {
	svc, clk, hub := newTestService(t, payment.NewStubGateway(100), nil)

	_, err := svc.Submit(context.Background(), 5, "default", submitReq())
	require.NoError(t, err)
	assert.True(t, svc.Release(5, "default"))
	assert.False(t, svc.Release(5, "default"))

	_, ok := svc.Snapshot(5, "default")
	assert.False(t, ok)
	assert.Nil(t, svc.InitialEvent(5, "default"))

	n := len(hub.states("5:default"))
	clk.Advance(5 * time.Minute)
	assert.Len(t, hub.states("5:default"), n, "released session must not keep polling")
	assert.Equal(t, 0, clk.Pending())
}

func TestCheckoutService_HistoryAndShutdown(t *testing.T) {
	svc, _, _ := newTestService(t, payment.NewStubGateway(1), nil)

	_, err := svc.History(context.Background(), 1)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.Recent(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrHistoryDisabled)

	svc.Shutdown()
	_, err = svc.Submit(context.Background(), 1, "default", submitReq())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestCheckoutService_InitialEvent(t *testing.T) {
	svc, _, _ := newTestService(t, payment.NewStubGateway(100), nil)
	_, err := svc.Submit(context.Background(), 2, "default", submitReq())
	require.NoError(t, err)

	ev, ok := svc.InitialEvent(2, "default").(Event)
	require.True(t, ok)
	assert.Equal(t, "snapshot", ev.Type)
	assert.Equal(t, checkout.StateAwaitingConfirmation, ev.Session.State)
}
