// Package cryptobot implements the Crypto Pay API (@CryptoBot) adapter.
package cryptobot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gton-market/settlement/internal/providers"
	"go.uber.org/zap"
)

const (
	ProviderID      = "cryptobot"
	signatureHeader = "crypto-pay-api-signature"
)

// Assets accepted as crypto invoices. Anything else is created as a fiat invoice.
var cryptoAssets = map[string]bool{
	"USDT": true, "TON": true, "BTC": true, "ETH": true, "LTC": true,
	"BNB": true, "TRX": true, "USDC": true, "NOT": true,
}

var fiatCurrencies = []string{"USD", "EUR", "RUB", "UAH", "KZT", "GBP"}

type Adapter struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

func New(baseURL, token string, timeout time.Duration, log *zap.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (a *Adapter) ID() string { return ProviderID }

func (a *Adapter) DefaultCurrency() string { return "USDT" }

func (a *Adapter) Currencies() []string {
	out := []string{"USDT", "TON", "BTC", "ETH", "LTC", "BNB", "TRX", "USDC", "NOT"}
	return append(out, fiatCurrencies...)
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error,omitempty"`
}

type invoice struct {
	InvoiceID         int64  `json:"invoice_id"`
	Status            string `json:"status"`
	Asset             string `json:"asset"`
	Amount            string `json:"amount"`
	Payload           string `json:"payload"`
	BotInvoiceURL     string `json:"bot_invoice_url"`
	MiniAppInvoiceURL string `json:"mini_app_invoice_url"`
}

func (a *Adapter) call(ctx context.Context, method, path string, body any) (json.RawMessage, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+"/api/"+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Crypto-Pay-API-Token", a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", providers.ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read body: %v", providers.ErrProviderRequest, err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, fmt.Errorf("%w: status %d: %s", providers.ErrProviderRequest, resp.StatusCode, string(raw))
	}
	if !out.OK {
		name := "unknown"
		if out.Error != nil {
			name = out.Error.Name
		}
		return nil, raw, fmt.Errorf("%w: %s", providers.ErrProviderRequest, name)
	}
	return out.Result, raw, nil
}

func (a *Adapter) CreatePayment(ctx context.Context, req providers.CreateRequest) (*providers.Invoice, error) {
	currency := strings.ToUpper(req.Currency)
	body := map[string]any{
		"amount":      req.Amount.String(),
		"payload":     req.Reference,
		"description": req.Description,
	}
	if cryptoAssets[currency] {
		body["currency_type"] = "crypto"
		body["asset"] = currency
	} else {
		body["currency_type"] = "fiat"
		body["fiat"] = currency
	}
	if req.ExpiresIn > 0 {
		body["expires_in"] = int(req.ExpiresIn.Seconds())
	}

	result, raw, err := a.call(ctx, http.MethodPost, "createInvoice", body)
	if err != nil {
		return nil, err
	}

	var inv invoice
	if err := json.Unmarshal(result, &inv); err != nil {
		return nil, fmt.Errorf("%w: decode invoice: %v", providers.ErrProviderRequest, err)
	}

	payURL := inv.MiniAppInvoiceURL
	if payURL == "" {
		payURL = inv.BotInvoiceURL
	}

	a.log.Info("cryptobot invoice created",
		zap.String("payment_id", req.PaymentID.String()),
		zap.Int64("invoice_id", inv.InvoiceID),
	)
	return &providers.Invoice{
		ExternalID: strconv.FormatInt(inv.InvoiceID, 10),
		PayURL:     payURL,
		Raw:        raw,
	}, nil
}

func (a *Adapter) CheckPayment(ctx context.Context, externalID string) providers.Status {
	q := url.Values{}
	q.Set("invoice_ids", externalID)

	result, _, err := a.call(ctx, http.MethodGet, "getInvoices?"+q.Encode(), nil)
	if err != nil {
		a.log.Warn("cryptobot status check failed", zap.String("invoice_id", externalID), zap.Error(err))
		return providers.StatusPending
	}

	var list struct {
		Items []invoice `json:"items"`
	}
	if err := json.Unmarshal(result, &list); err != nil || len(list.Items) == 0 {
		a.log.Warn("cryptobot invoice not found", zap.String("invoice_id", externalID))
		return providers.StatusPending
	}
	return mapStatus(list.Items[0].Status)
}

type webhookUpdate struct {
	UpdateID   int64   `json:"update_id"`
	UpdateType string  `json:"update_type"`
	Payload    invoice `json:"payload"`
}

// HandleWebhook verifies hex(HMAC-SHA256(body, SHA256(token))) before trusting the payload.
func (a *Adapter) HandleWebhook(payload []byte, headers map[string]string) (*providers.WebhookResult, error) {
	sig := ""
	for k, v := range headers {
		if strings.EqualFold(k, signatureHeader) {
			sig = v
			break
		}
	}
	if sig == "" || !VerifySignature(a.token, payload, sig) {
		return nil, fmt.Errorf("%w: bad signature", providers.ErrWebhookRejected)
	}

	var upd webhookUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		return nil, fmt.Errorf("%w: malformed body", providers.ErrWebhookRejected)
	}
	if upd.Payload.InvoiceID == 0 {
		return nil, fmt.Errorf("%w: no invoice id", providers.ErrWebhookRejected)
	}

	status := mapStatus(upd.Payload.Status)
	if upd.UpdateType == "invoice_paid" {
		status = providers.StatusCompleted
	}
	return &providers.WebhookResult{
		ExternalID: strconv.FormatInt(upd.Payload.InvoiceID, 10),
		Status:     status,
	}, nil
}

// Sign computes the signature Crypto Pay attaches to webhook deliveries.
func Sign(token string, body []byte) string {
	secret := sha256.Sum256([]byte(token))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(token string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(Sign(token, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func mapStatus(s string) providers.Status {
	switch s {
	case "paid":
		return providers.StatusCompleted
	case "expired":
		return providers.StatusExpired
	default: // active
		return providers.StatusPending
	}
}
