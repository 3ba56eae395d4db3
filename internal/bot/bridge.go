package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"movievault/internal/errs"
	"movievault/internal/logging"
	"movievault/internal/metrics"
)

const (
	bridgeBreakerName = "chat-bridge"
	maxBridgeBody     = 1 << 20
)

type BridgeConfig struct {
	// BaseURL is the bridge endpoint; methods are posted to BaseURL/<method>.
	BaseURL string
	Token   string
	Timeout time.Duration
}

// BridgeMessenger posts outbound messages as JSON to the chat transport
// bridge. Calls go through a circuit breaker so an unreachable bridge fails
// fast instead of stalling every worker.
type BridgeMessenger struct {
	baseURL string
	token   string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[int64]
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type sendPhotoRequest struct {
	ChatID    int64  `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendDocumentRequest struct {
	ChatID   int64  `json:"chat_id"`
	Document string `json:"document"`
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type bridgeResponse struct {
	OK     bool `json:"ok"`
	Result *struct {
		MessageID int64 `json:"message_id"`
	} `json:"result,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func NewBridgeMessenger(cfg BridgeConfig) *BridgeMessenger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(bridgeBreakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        bridgeBreakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// A message that is already gone says nothing about bridge health.
		IsSuccessful: func(err error) bool {
			return err == nil || errs.Is(err, errs.CodeNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BridgeMessenger{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

func (b *BridgeMessenger) SendText(ctx context.Context, chatID int64, text string, buttons []Button) (int64, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode}
	if len(buttons) > 0 {
		markup := &replyMarkup{}
		for _, btn := range buttons {
			markup.InlineKeyboard = append(markup.InlineKeyboard, []inlineButton{{
				Text: btn.Text, CallbackData: btn.Data, URL: btn.URL,
			}})
		}
		req.ReplyMarkup = markup
	}
	return b.call(ctx, "sendMessage", req)
}

func (b *BridgeMessenger) SendPhoto(ctx context.Context, chatID int64, assetRef, caption string) (int64, error) {
	return b.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatID: chatID, Photo: assetRef, Caption: caption, ParseMode: parseMode,
	})
}

func (b *BridgeMessenger) SendDocument(ctx context.Context, chatID int64, assetRef string) (int64, error) {
	return b.call(ctx, "sendDocument", sendDocumentRequest{ChatID: chatID, Document: assetRef})
}

func (b *BridgeMessenger) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := b.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID})
	return err
}

func (b *BridgeMessenger) call(ctx context.Context, method string, payload any) (int64, error) {
	id, err := b.cb.Execute(func() (int64, error) {
		return b.do(ctx, method, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, errs.Wrap(errs.CodeDeliveryFailure, err, method+": bridge unavailable")
	}
	return id, err
}

func (b *BridgeMessenger) do(ctx context.Context, method string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.CodeDeliveryFailure, err, method)
	}
	defer resp.Body.Close()

	var out bridgeResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBridgeBody)).Decode(&out)
	if decodeErr != nil && resp.StatusCode == http.StatusOK {
		return 0, errs.Wrap(errs.CodeDeliveryFailure, decodeErr, "decode "+method+" response")
	}
	if decodeErr == nil && out.OK {
		if out.Result == nil {
			return 0, nil
		}
		return out.Result.MessageID, nil
	}

	code := out.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	msg := fmt.Sprintf("%s: bridge returned %d %s", method, code, out.Description)
	if code == http.StatusNotFound || strings.Contains(strings.ToLower(out.Description), "not found") {
		return 0, errs.New(errs.CodeNotFound, msg)
	}
	return 0, errs.New(errs.CodeDeliveryFailure, msg)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
