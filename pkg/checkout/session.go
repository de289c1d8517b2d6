package checkout

import "time"

// Session is one payment attempt as the checkout UI sees it. The
// Controller owns the live value; callers only ever get copies.
type Session struct {
	ID                      string    `json:"id"`
	State                   State     `json:"state"`
	Status                  string    `json:"status,omitempty"`
	Message                 string    `json:"message"`
	ErrorKind               ErrorKind `json:"error_kind,omitempty"`
	Degraded                bool      `json:"degraded,omitempty"`
	RawPhoneInput           string    `json:"-"`
	MSISDN                  string    `json:"msisdn,omitempty"`
	Amount                  int64     `json:"amount"`
	AccountReference        string    `json:"account_reference"`
	Description             string    `json:"description"`
	EventID                 string    `json:"event_id,omitempty"`
	TicketQuantity          int       `json:"ticket_quantity,omitempty"`
	CorrelationID           string    `json:"correlation_id,omitempty"`
	ConsecutivePollFailures int       `json:"consecutive_poll_failures"`
	StartedAt               time.Time `json:"started_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// SubmitRequest is the checkout form as submitted by the UI.
type SubmitRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
	EventID          string
	TicketQuantity   int
	BearerToken      string
}
