package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roamlabs/fieldtrip/internal/config"
	paymentdomain "github.com/roamlabs/fieldtrip/internal/payment/domain"
)

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	apiKey string
	client *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiKey: strings.TrimSpace(cfg.StripeAPIKey),
		client: &http.Client{Timeout: 12 * time.Second},
	}
}

func (c *Client) CreateCheckoutSession(
	ctx context.Context,
	req paymentdomain.CreateCheckoutSessionRequest,
) (*paymentdomain.CheckoutSession, error) {
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	values.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	values.Set("metadata[booking_id]", req.BookingID.String())
	values.Set("payment_intent_data[metadata][booking_id]", req.BookingID.String())
	if req.IsDeposit {
		values.Set("metadata[is_deposit]", "true")
		values.Set("payment_intent_data[metadata][is_deposit]", "true")
	}
	if req.DestinationAccountID != "" {
		values.Set("payment_intent_data[transfer_data][destination]", req.DestinationAccountID)
		if req.ApplicationFeeAmount > 0 {
			values.Set("payment_intent_data[application_fee_amount]", strconv.FormatInt(req.ApplicationFeeAmount, 10))
		}
	}

	var session stripeCheckoutSession
	if err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, "checkout:"+req.BookingID.String(), &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, errors.New("stripe_response_invalid")
	}
	return toCheckoutSession(session), nil
}

func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	var session stripeCheckoutSession
	if err := c.doRequest(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, "", &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, paymentdomain.ErrSessionNotFound
	}
	return toCheckoutSession(session), nil
}

func (c *Client) CreateRefund(ctx context.Context, req paymentdomain.CreateRefundRequest) (*paymentdomain.Refund, error) {
	values := url.Values{}
	if req.PaymentIntentID != "" {
		values.Set("payment_intent", req.PaymentIntentID)
	} else if req.ChargeID != "" {
		values.Set("charge", req.ChargeID)
	} else {
		return nil, paymentdomain.ErrInvalidConfig
	}
	if req.Amount > 0 {
		values.Set("amount", strconv.FormatInt(req.Amount, 10))
	}
	if req.Reason != "" {
		values.Set("metadata[reason]", req.Reason)
	}

	var refund stripeRefund
	if err := c.doRequest(ctx, http.MethodPost, "/v1/refunds", values, req.IdempotencyKey, &refund); err != nil {
		return nil, err
	}
	if refund.ID == "" {
		return nil, errors.New("stripe_response_invalid")
	}
	if refund.Status == "failed" || refund.Status == "canceled" {
		return nil, paymentdomain.ErrRefundRejected
	}
	return &paymentdomain.Refund{ID: refund.ID, Status: refund.Status}, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return paymentdomain.ErrInvalidConfig
	}
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, "https://api.stripe.com"+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return errors.New("stripe_request_failed")
		}
		return classifyError(resp.StatusCode, stripeErr)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// classifyError separates the two terminal answers the reconciler cares
// about from everything else, which stays retryable.
func classifyError(status int, stripeErr stripeErrorResponse) error {
	code := strings.TrimSpace(stripeErr.Error.Code)
	message := strings.TrimSpace(stripeErr.Error.Message)

	if status == http.StatusNotFound || code == "resource_missing" {
		if strings.Contains(message, "live mode") || strings.Contains(message, "test mode") {
			return paymentdomain.ErrModeMismatch
		}
		return paymentdomain.ErrSessionNotFound
	}
	if message == "" {
		message = "stripe_request_failed"
	}
	return errors.New(message)
}

func toCheckoutSession(session stripeCheckoutSession) *paymentdomain.CheckoutSession {
	return &paymentdomain.CheckoutSession{
		ID:              session.ID,
		URL:             session.URL,
		PaymentIntentID: session.PaymentIntent,
		PaymentStatus:   session.PaymentStatus,
		AmountTotal:     session.AmountTotal,
		Currency:        strings.ToUpper(session.Currency),
		Metadata:        session.Metadata,
	}
}
