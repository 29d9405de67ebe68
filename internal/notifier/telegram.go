package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// Ensure TelegramMessenger implements model.Messenger.
var _ model.Messenger = (*TelegramMessenger)(nil)

const telegramAPIBase = "https://api.telegram.org"

// TelegramMessenger delivers messages through the Telegram Bot API. A 403
// from sendMessage means the recipient blocked the bot; that is surfaced as
// model.ErrRecipientBlocked so dispatch can stop retrying them.
type TelegramMessenger struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegramMessenger returns a messenger for the given bot token.
func NewTelegramMessenger(token string, httpClient *http.Client, logger *slog.Logger) *TelegramMessenger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TelegramMessenger{
		baseURL:    telegramAPIBase,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send posts one message to recipientID.
func (t *TelegramMessenger) Send(ctx context.Context, recipientID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to telegram: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusForbidden:
		return fmt.Errorf("send to %d: %w", recipientID, model.ErrRecipientBlocked)
	case http.StatusTooManyRequests:
		var out sendMessageResponse
		_ = json.Unmarshal(body, &out)
		t.logger.Warn("telegram rate limited",
			"recipient", recipientID,
			"retry_after_secs", out.Parameters.RetryAfter,
			"description", out.Description,
		)
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: time.Duration(out.Parameters.RetryAfter) * time.Second,
			Err:        fmt.Errorf("telegram rate limited"),
		}
	default:
		var out sendMessageResponse
		if json.Unmarshal(body, &out) == nil && out.Description != "" {
			return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, out.Description)
		}
		return fmt.Errorf("telegram returned %d", resp.StatusCode)
	}
}
