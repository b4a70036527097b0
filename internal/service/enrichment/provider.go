package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/pkg/circuitbreaker"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

// ContactRequest identifies one person to look up.
type ContactRequest struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CompanyName string `json:"company,omitempty"`
	SIREN       string `json:"siren,omitempty"`
}

// Provider resolves a contact request to coordinates. Implementations wrap
// asynchronous third-party enrichment APIs behind a blocking call.
type Provider interface {
	Name() string
	EnrichContact(ctx context.Context, req ContactRequest) (*model.ContactResult, error)
}

// ErrContactNotFound marks a lookup the provider completed but could not
// resolve. The worker counts it as a failure without charging for it.
var ErrContactNotFound = fmt.Errorf("contact not found")

type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	PollAttempts int
	PollDelay    time.Duration
	Timeout      time.Duration
}

// httpProvider speaks the submit-then-poll protocol: POST a batch, receive a
// request id, poll until the provider reports the batch ready.
type httpProvider struct {
	baseURL      string
	apiKey       string
	pollAttempts int
	pollDelay    time.Duration
	client       *http.Client
	breaker      *circuitbreaker.Breaker
}

func NewHTTPProvider(cfg ProviderConfig) Provider {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &httpProvider{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollAttempts: cfg.PollAttempts,
		pollDelay:    cfg.PollDelay,
		client:       &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:             "dropcontact",
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}),
	}
}

func (p *httpProvider) Name() string { return "dropcontact" }

type submitResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

type pollResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Email []struct {
			Address   string `json:"email"`
			Qualified string `json:"qualification"`
		} `json:"email"`
		Phone       string  `json:"phone"`
		MobilePhone string  `json:"mobile_phone"`
		LinkedIn    string  `json:"linkedin"`
		JobTitle    string  `json:"job"`
		Confidence  float64 `json:"confidence"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

func (p *httpProvider) EnrichContact(ctx context.Context, req ContactRequest) (*model.ContactResult, error) {
	requestID, err := p.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.poll(ctx, requestID)
}

// submit runs behind the breaker so a dead provider fails fast instead of
// timing out once per contact.
func (p *httpProvider) submit(ctx context.Context, req ContactRequest) (string, error) {
	var requestID string
	err := p.breaker.Execute(func() error {
		id, err := p.submitOnce(ctx, req)
		if err != nil {
			return err
		}
		requestID = id
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", apperrors.ExternalService(p.Name(), err)
	}
	return requestID, err
}

func (p *httpProvider) submitOnce(ctx context.Context, req ContactRequest) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"data": []ContactRequest{req},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/batch", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Access-Token", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", apperrors.ExternalService(p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperrors.ExternalService(p.Name(), fmt.Errorf("submit returned %d", resp.StatusCode))
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", apperrors.ExternalService(p.Name(), err)
	}
	if submitted.RequestID == "" {
		return "", apperrors.ExternalService(p.Name(), fmt.Errorf("submit accepted without request id: %s", submitted.Error))
	}
	return submitted.RequestID, nil
}

func (p *httpProvider) poll(ctx context.Context, requestID string) (*model.ContactResult, error) {
	for attempt := 0; attempt < p.pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.pollDelay):
			}
		}

		result, ready, err := p.pollOnce(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if ready {
			return result, nil
		}
	}
	return nil, apperrors.ExternalService(p.Name(), fmt.Errorf("request %s not ready after %d polls", requestID, p.pollAttempts))
}

func (p *httpProvider) pollOnce(ctx context.Context, requestID string) (*model.ContactResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/batch/"+requestID, nil)
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("X-Access-Token", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, false, apperrors.ExternalService(p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, apperrors.ExternalService(p.Name(), fmt.Errorf("poll returned %d", resp.StatusCode))
	}

	var polled pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&polled); err != nil {
		return nil, false, apperrors.ExternalService(p.Name(), err)
	}
	if !polled.Success {
		// Still processing.
		return nil, false, nil
	}
	if len(polled.Data) == 0 {
		return nil, true, ErrContactNotFound
	}

	data := polled.Data[0]
	result := &model.ContactResult{
		Phone:       data.Phone,
		MobilePhone: data.MobilePhone,
		LinkedIn:    data.LinkedIn,
		JobTitle:    data.JobTitle,
		Confidence:  data.Confidence,
	}
	if len(data.Email) > 0 {
		result.Email = data.Email[0].Address
		result.EmailVerified = data.Email[0].Qualified == "correct"
	}
	if result.Email == "" && result.Phone == "" && result.MobilePhone == "" {
		return nil, true, ErrContactNotFound
	}
	return result, true, nil
}
