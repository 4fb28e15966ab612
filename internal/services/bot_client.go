package services

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

	"go.uber.org/zap"
)

const botClientAttempts = 3

var errBotUnavailable = errors.New("bot service unavailable")

// BotClient delivers notifications through the chat front end's internal
// HTTP API. Used by the bridge when it has no bot token of its own.
type BotClient struct {
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
	log        *zap.Logger
}

func NewBotClient(baseURL string, log *zap.Logger) *BotClient {
	return &BotClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		backoff:    500 * time.Millisecond,
		log:        log,
	}
}

type notifyRequest struct {
	TelegramUserID int64  `json:"telegram_user_id"`
	Text           string `json:"text"`
}

// SendNotification retries transport errors and 5xx answers; 4xx answers
// are final.
func (c *BotClient) SendNotification(ctx context.Context, telegramUserID int64, text string) error {
	body, err := json.Marshal(notifyRequest{TelegramUserID: telegramUserID, Text: text})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= botClientAttempts; attempt++ {
		retry, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == botClientAttempts {
			break
		}

		c.log.Debug("bot notify retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (c *BotClient) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/notify", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %v", errBotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return false, nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode >= http.StatusInternalServerError,
		fmt.Errorf("bot service returned %d: %s", resp.StatusCode, string(b))
}
