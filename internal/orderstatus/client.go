package orderstatus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/paytrack/pkg/enums"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	orderStatusPath      = "api/order_status"
	createPaymentPath    = "api/create_payment"
	simulateCallbackPath = "api/simulate_callback"

	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("payment backend base url is required")

// Kind classifies why a backend call failed.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindHTTPStatus Kind = "http_status"
	KindDecode     Kind = "decode"
)

// CallError carries the failure kind alongside the wrapped dependency error.
type CallError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err, or "" when err is not a backend call error.
func KindOf(err error) Kind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return ""
}

// Result is one order status answer from the backend.
type Result struct {
	Found           bool                `json:"found"`
	Status          enums.PaymentStatus `json:"status"`
	Reference       string              `json:"reference,omitempty"`
	Amount          *decimal.Decimal    `json:"amount,omitempty"`
	PaymentMethod   string              `json:"paymentMethod,omitempty"`
	StatusMessage   string              `json:"statusMessage,omitempty"`
	MerchantOrderID string              `json:"merchantOrderId,omitempty"`
}

// PaymentRequest is the checkout payload sent to the backend.
type PaymentRequest struct {
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
}

// Payment is the backend's answer to a checkout.
type Payment struct {
	PaymentURL      string `json:"paymentUrl"`
	MerchantOrderID string `json:"merchantOrderId"`
}

// Client talks to the remote payment backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetOrderStatus fetches the current status of orderID.
// Unknown status strings come back as PENDING.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (Result, error) {
	if c == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeDependency, "payment backend client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	endpoint := c.buildURL(orderStatusPath, url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build order status request")
	}
	httpReq.Header.Set("Accept", "application/json")

	var apiResp struct {
		Found           bool             `json:"found"`
		Status          string           `json:"status"`
		Reference       string           `json:"reference"`
		Amount          *decimal.Decimal `json:"amount"`
		PaymentMethod   string           `json:"paymentMethod"`
		StatusMessage   string           `json:"statusMessage"`
		MerchantOrderID string           `json:"merchantOrderId"`
	}
	if err := c.do(httpReq, "order status", &apiResp); err != nil {
		return Result{}, err
	}

	result := Result{
		Found:           apiResp.Found,
		Status:          enums.NormalizePaymentStatus(apiResp.Status),
		Reference:       apiResp.Reference,
		Amount:          apiResp.Amount,
		PaymentMethod:   apiResp.PaymentMethod,
		StatusMessage:   apiResp.StatusMessage,
		MerchantOrderID: apiResp.MerchantOrderID,
	}
	if result.MerchantOrderID == "" {
		result.MerchantOrderID = trimmed
	}
	return result, nil
}

// CreatePayment asks the backend for a payment link for one product.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	if c == nil {
		return Payment{}, pkgerrors.New(pkgerrors.CodeDependency, "payment backend client not configured")
	}
	if strings.TrimSpace(req.ProductName) == "" || req.Price <= 0 {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "product name and a positive price are required")
	}

	httpReq, err := c.newJSONRequest(ctx, createPaymentPath, req)
	if err != nil {
		return Payment{}, err
	}

	var payment Payment
	if err := c.do(httpReq, "create payment", &payment); err != nil {
		return Payment{}, err
	}
	if strings.TrimSpace(payment.PaymentURL) == "" {
		return Payment{}, pkgerrors.Wrap(pkgerrors.CodeDependency,
			&CallError{Kind: KindDecode, Err: errors.New("paymentUrl missing")}, "create payment returned no payment url")
	}
	return payment, nil
}

// SimulateCallback flips the sandbox order state as if the gateway had called back.
func (c *Client) SimulateCallback(ctx context.Context, orderID string, code enums.ResultCode) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "payment backend client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	payload := struct {
		MerchantOrderID string `json:"merchantOrderId"`
		ResultCode      string `json:"resultCode"`
	}{MerchantOrderID: trimmed, ResultCode: code.String()}

	httpReq, err := c.newJSONRequest(ctx, simulateCallbackPath, payload)
	if err != nil {
		return err
	}
	return c.do(httpReq, "simulate callback", nil)
}

func (c *Client) newJSONRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

// do executes the request and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(httpReq *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, &CallError{Kind: KindTransport, Err: err}, "execute %s request", op)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		callErr := &CallError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(backendMessage(msg)),
		}
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, callErr, "%s request failed", op)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrapf(pkgerrors.CodeDependency, &CallError{Kind: KindDecode, Err: err}, "decode %s response", op)
	}
	return nil
}

// backendMessage prefers the backend's {"error": "..."} field over the raw body.
func backendMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) buildURL(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, c.baseURL)
	for _, part := range parts {
		segments = append(segments, strings.Trim(part, "/"))
	}
	return strings.Join(segments, "/")
}
