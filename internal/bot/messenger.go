package bot

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"movievault/internal/logging"
)

// Button is an inline button under a text message. Exactly one of Data
// (callback payload) or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Messenger delivers outbound messages to chats. Send methods return the id
// of the message that was posted.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, buttons []Button) (int64, error)
	SendPhoto(ctx context.Context, chatID int64, assetRef, caption string) (int64, error)
	SendDocument(ctx context.Context, chatID int64, assetRef string) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// LogMessenger writes outbound messages to the log instead of a chat. It is
// used when no bridge is configured.
type LogMessenger struct {
	next atomic.Int64
}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{}
}

func (l *LogMessenger) SendText(_ context.Context, chatID int64, text string, buttons []Button) (int64, error) {
	id := l.next.Add(1)
	logging.Info().Int64("chat_id", chatID).Int64("message_id", id).
		Int("buttons", len(buttons)).Str("text", text).Msg("send text")
	return id, nil
}

func (l *LogMessenger) SendPhoto(_ context.Context, chatID int64, assetRef, caption string) (int64, error) {
	id := l.next.Add(1)
	logging.Info().Int64("chat_id", chatID).Int64("message_id", id).
		Str("asset", assetRef).Str("caption", caption).Msg("send photo")
	return id, nil
}

func (l *LogMessenger) SendDocument(_ context.Context, chatID int64, assetRef string) (int64, error) {
	id := l.next.Add(1)
	logging.Info().Int64("chat_id", chatID).Int64("message_id", id).
		Str("asset", assetRef).Msg("send document")
	return id, nil
}

func (l *LogMessenger) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	logging.Info().Int64("chat_id", chatID).Int64("message_id", messageID).Msg("delete message")
	return nil
}

// Throttled caps the outbound message rate of another Messenger. Calls wait
// for a token and give up when ctx is done.
type Throttled struct {
	next    Messenger
	limiter *rate.Limiter
}

func NewThrottled(next Messenger, perSecond float64, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) SendText(ctx context.Context, chatID int64, text string, buttons []Button) (int64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return t.next.SendText(ctx, chatID, text, buttons)
}

func (t *Throttled) SendPhoto(ctx context.Context, chatID int64, assetRef, caption string) (int64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return t.next.SendPhoto(ctx, chatID, assetRef, caption)
}

func (t *Throttled) SendDocument(ctx context.Context, chatID int64, assetRef string) (int64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return t.next.SendDocument(ctx, chatID, assetRef)
}

func (t *Throttled) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.next.DeleteMessage(ctx, chatID, messageID)
}
