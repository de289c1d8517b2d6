package payment

import (
	"context"
	"fmt"
)

// InitiationRequest is what the storefront sends to start an STK push.
type InitiationRequest struct {
	MSISDN           string // normalized, 2547XXXXXXXX
	Amount           int64  // whole KES
	AccountReference string
	Description      string
	EventID          string // optional storefront context
	TicketQuantity   int    // optional storefront context
	BearerToken      string // forwarded to the ticketing API
}

// InitiationResult is the normalized body of a 2xx initiation response.
type InitiationResult struct {
	CorrelationID string
	ResponseCode  string // empty when the body carried none
	Message       string // customer-facing text, e.g. "Enter PIN"
	ErrorMessage  string
}

// StatusResult is the normalized body of a status poll.
type StatusResult struct {
	NotModified bool   // HTTP 304
	Status      string // lowercased status label, empty if none found
}

// Gateway talks to the ticketing API's payment endpoints.
type Gateway interface {
	Initiate(ctx context.Context, req InitiationRequest) (*InitiationResult, error)
	Status(ctx context.Context, correlationID, bearerToken string) (*StatusResult, error)
}

// HTTPError is a non-2xx answer from either endpoint.
type HTTPError struct {
	StatusCode int
	Message    string // endpoint-provided text, may be empty
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment api: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("payment api: %d", e.StatusCode)
}
