package models

import "time"

// CheckoutAttempt is the persisted history of one checkout session.
type CheckoutAttempt struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SessionID        string     `gorm:"size:36;uniqueIndex;not null" json:"session_id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	Instance         string     `gorm:"size:64" json:"-"`
	MSISDN           string     `gorm:"column:msisdn;size:16" json:"msisdn"` // masked
	AmountKES        int64      `gorm:"not null" json:"amount_kes"`
	AccountReference string     `gorm:"size:64" json:"account_reference"`
	Description      string     `gorm:"size:255" json:"description"`
	EventID          string     `gorm:"size:64;index" json:"event_id,omitempty"`
	TicketQuantity   int        `json:"ticket_quantity,omitempty"`
	CorrelationID    string     `gorm:"size:128;index" json:"correlation_id,omitempty"`
	State            string     `gorm:"size:32;not null;index" json:"state"` // initiating, awaiting_confirmation, succeeded, failed, timed_out, error, idle
	ErrorKind        string     `gorm:"size:32" json:"error_kind,omitempty"`
	Message          string     `gorm:"size:512" json:"message"`
	StartedAt        time.Time  `gorm:"index" json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (CheckoutAttempt) TableName() string {
	return "checkout_attempts"
}
