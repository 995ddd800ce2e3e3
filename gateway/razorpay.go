package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"unschooling-payment-service/apperrors"
)

const (
	// DefaultBaseURL is the Razorpay REST root.
	DefaultBaseURL = "https://api.razorpay.com/v1"
	// DefaultTimeout bounds every gateway round trip.
	DefaultTimeout = 15 * time.Second
)

// RazorpayClient implements Gateway using the Razorpay REST API.
type RazorpayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

// NewRazorpayClient creates a client. Empty baseURL or zero timeout fall back
// to the defaults.
func NewRazorpayClient(keyID, keySecret, baseURL string, timeout time.Duration) *RazorpayClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RazorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

// CreateOrder registers a one-time order.
func (r *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var resp Order
	if err := r.doRequest(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("razorpay CreateOrder: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("razorpay CreateOrder: %w", apperrors.ErrGatewayUnavailable.Wrapf("response without order id"))
	}
	return &resp, nil
}

// CreateSubscription registers a recurring mandate against a dashboard plan.
func (r *RazorpayClient) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	var resp Subscription
	if err := r.doRequest(ctx, http.MethodPost, "/subscriptions", req, &resp); err != nil {
		return nil, fmt.Errorf("razorpay CreateSubscription: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("razorpay CreateSubscription: %w", apperrors.ErrGatewayUnavailable.Wrapf("response without subscription id"))
	}
	return &resp, nil
}

// ---- HTTP helper ----

// doRequest classifies every failure: transport errors, timeouts, 5xx and 429
// are ErrGatewayUnavailable; any other non-2xx is ErrGatewayRejected.
func (r *RazorpayClient) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("http do: %w", err))
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cause := fmt.Errorf("razorpay API error (status %d): %s", resp.StatusCode, describe(respBytes))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return apperrors.ErrGatewayUnavailable.Wrap(cause)
		}
		return apperrors.ErrGatewayRejected.Wrap(cause)
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func describe(body []byte) string {
	var e razorpayError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Code != "" {
		return e.Error.Code + ": " + e.Error.Description
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}

// IsTimeout reports whether err came from a deadline rather than a refusal.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
