package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"agenda_backend/pkg/apperrors"
)

// ProcessorTransaction — транзакция в том виде, в каком ее сообщает
// процессинг: и в вебхуке, и в ответе поискового API форма одна.
type ProcessorTransaction struct {
	ID          string            `json:"transaction_id"`
	Status      string            `json:"status"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	ExternalRef string            `json:"external_reference,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Time        time.Time         `json:"transaction_time"`
}

const StatusApproved = "approved"

// Approved сообщает, является ли транзакция подтвержденной.
func (t ProcessorTransaction) Approved() bool {
	return t.Status == StatusApproved
}

// ProcessorClient — исходящий поисковый API процессинга.
type ProcessorClient interface {
	// SearchApproved возвращает подтвержденные транзакции за окно времени.
	SearchApproved(ctx context.Context, from, to time.Time, limit int) ([]ProcessorTransaction, error)
}

// HTTPProcessorClient — клиент поискового API поверх net/http.
type HTTPProcessorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProcessorClient(baseURL, apiKey string) *HTTPProcessorClient {
	return &HTTPProcessorClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPProcessorClient) SearchApproved(ctx context.Context, from, to time.Time, limit int) ([]ProcessorTransaction, error) {
	params := url.Values{}
	params.Set("status", StatusApproved)
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))
	params.Set("limit", fmt.Sprintf("%d", limit))

	endpoint := fmt.Sprintf("%s/v1/transactions/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.ErrProcessorUnavailable(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.ErrProcessorUnavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ErrProcessorUnavailable(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ErrProcessorUnavailable(
			fmt.Errorf("processor search returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed struct {
		Transactions []ProcessorTransaction `json:"transactions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.ErrProcessorUnavailable(err)
	}

	return parsed.Transactions, nil
}
