package payment

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// StubGateway accepts every push and reports success after SuccessAfter
// polls. For local development without a ticketing API.
type StubGateway struct {
	SuccessAfter int

	mu    sync.Mutex
	polls map[string]int
}

func NewStubGateway(successAfter int) *StubGateway {
	return &StubGateway{SuccessAfter: successAfter, polls: make(map[string]int)}
}

func (s *StubGateway) Initiate(ctx context.Context, req InitiationRequest) (*InitiationResult, error) {
	id := "stub_" + uuid.NewString()
	s.mu.Lock()
	s.polls[id] = 0
	s.mu.Unlock()
	return &InitiationResult{
		CorrelationID: id,
		ResponseCode:  "0",
		Message:       "Success. Request accepted for processing",
	}, nil
}

func (s *StubGateway) Status(ctx context.Context, correlationID, bearerToken string) (*StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.polls[correlationID]
	if !ok {
		return nil, &HTTPError{StatusCode: http.StatusNotFound, Message: "unknown checkout request"}
	}
	n++
	s.polls[correlationID] = n
	if n < s.SuccessAfter {
		return &StatusResult{Status: "pending"}, nil
	}
	delete(s.polls, correlationID)
	return &StatusResult{Status: "success"}, nil
}
