package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Endpoints locates the ticketing API's payment routes.
type Endpoints struct {
	BaseURL      string // e.g. https://api.tiketi.example
	InitiatePath string // POST, JSON body
	StatusPath   string // GET, correlation id in the query
	StatusParam  string // query parameter name for the correlation id
}

// DefaultEndpoints matches the routes the storefront has always called.
func DefaultEndpoints(baseURL string) Endpoints {
	return Endpoints{
		BaseURL:      baseURL,
		InitiatePath: "/api/payments/initiate",
		StatusPath:   "/api/payments/status",
		StatusParam:  "checkoutRequestId",
	}
}

// HTTPGateway implements Gateway against the ticketing REST API.
type HTTPGateway struct {
	ep     Endpoints
	client *http.Client
	log    zerolog.Logger
}

func NewHTTPGateway(ep Endpoints, timeout time.Duration, logger zerolog.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		ep:     ep,
		client: &http.Client{Timeout: timeout},
		log:    logger,
	}
}

type initiateBody struct {
	Phone            string `json:"phone"`
	Amount           int64  `json:"amount"`
	AccountReference string `json:"accountReference"`
	Description      string `json:"description"`
	EventID          string `json:"eventId,omitempty"`
	TicketQuantity   int    `json:"ticketQuantity,omitempty"`
}

// Initiate sends the STK push request. Transport failures are returned
// wrapped; non-2xx answers come back as *HTTPError.
func (g *HTTPGateway) Initiate(ctx context.Context, req InitiationRequest) (*InitiationResult, error) {
	body, err := json.Marshal(initiateBody{
		Phone:            req.MSISDN,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		Description:      req.Description,
		EventID:          req.EventID,
		TicketQuantity:   req.TicketQuantity,
	})
	if err != nil {
		return nil, err
	}
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.ep.BaseURL+g.ep.InitiatePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Content-Type", "application/json")
	apiReq.Header.Set("Accept", "application/json")
	setBearer(apiReq, req.BearerToken)

	g.log.Debug().Str("phone", MaskMSISDN(req.MSISDN)).Int64("amount", req.Amount).
		Str("account_reference", req.AccountReference).Msg("initiate stk push")
	resp, err := g.client.Do(apiReq)
	if err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("initiate: read body: %w", err)
	}
	g.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(respBody)).Msg("initiate response")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: MessageFromBody(respBody)}
	}
	out := ParseInitiation(respBody)
	return &out, nil
}

// Status asks for the current state of a push. Intermediate caches are told
// not to answer; a 304 is still reported as NotModified.
func (g *HTTPGateway) Status(ctx context.Context, correlationID, bearerToken string) (*StatusResult, error) {
	q := url.Values{}
	q.Set(g.ep.StatusParam, correlationID)
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.ep.BaseURL+g.ep.StatusPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Accept", "application/json, text/plain")
	apiReq.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	apiReq.Header.Set("Pragma", "no-cache")
	apiReq.Header.Set("Expires", "0")
	setBearer(apiReq, bearerToken)

	resp, err := g.client.Do(apiReq)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("status: read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotModified {
		return &StatusResult{NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: MessageFromBody(respBody)}
	}
	out := ParseStatus(respBody)
	return &out, nil
}

func setBearer(r *http.Request, token string) {
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}
