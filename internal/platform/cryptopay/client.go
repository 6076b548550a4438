package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"crypto-balance-backend/internal/common/config"
	"crypto-balance-backend/internal/common/logger"
)

// ErrProvider marks any failure of the payment provider: network errors,
// non-2xx responses and ok:false bodies all collapse into it.
var ErrProvider = errors.New("payment provider error")

// Client talks to a Crypto Pay style invoice API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	webAppURL  string
	maxRetries int
}

type Invoice struct {
	InvoiceID int64  `json:"invoice_id"`
	PayURL    string `json:"pay_url"`
}

type apiResponse struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type createInvoiceRequest struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	PaidBtnName string `json:"paid_btn_name"`
	PaidBtnURL  string `json:"paid_btn_url"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.CryptoPay.Timeout},
		baseURL:    cfg.CryptoPay.BaseURL,
		token:      cfg.CryptoPay.Token,
		webAppURL:  cfg.CryptoPay.WebAppURL,
		maxRetries: cfg.CryptoPay.MaxRetries,
	}
}

// CreateInvoice requests a new payment invoice. Transient failures are
// retried with backoff; the provider dedupes by invoice contents, so a
// retry never produces a second live invoice for the same request.
func (c *Client) CreateInvoice(ctx context.Context, asset string, amount float64, description string) (*Invoice, error) {
	payload := createInvoiceRequest{
		Asset:       asset,
		Amount:      strconv.FormatFloat(amount, 'f', 2, 64),
		Description: description,
		PaidBtnName: "callback",
		PaidBtnURL:  c.webAppURL + "/payment_success",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		invoice, retryable, err := c.doCreateInvoice(ctx, body)
		if err == nil {
			return invoice, nil
		}
		lastErr = err
		if !retryable {
			break
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("createInvoice failed, retrying")
	}

	return nil, lastErr
}

func (c *Client) doCreateInvoice(ctx context.Context, body []byte) (*Invoice, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/createInvoice", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, true, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if !apiResp.Ok {
		return nil, false, fmt.Errorf("%w: %s", ErrProvider, apiResp.Error)
	}

	var invoice Invoice
	if err := json.Unmarshal(apiResp.Result, &invoice); err != nil {
		return nil, false, fmt.Errorf("%w: decode invoice: %v", ErrProvider, err)
	}

	return &invoice, false, nil
}
