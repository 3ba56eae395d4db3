// Package bot turns inbound chat events into catalog operations and replies.
package bot

import (
	"context"
	"fmt"
	"strings"

	"movievault/internal/errs"
	"movievault/internal/logging"
	"movievault/internal/metrics"
	"movievault/internal/models"
	"movievault/internal/service/ingest"
	"movievault/internal/service/search"
)

const callbackSearchPrefix = "search:"

type Ingestor interface {
	HandleDocument(ctx context.Context, up ingest.Upload) (ingest.Outcome, error)
	HandlePhoto(ctx context.Context, up ingest.Upload) (ingest.Outcome, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) (search.Result, error)
	Lookup(ctx context.Context, id string) (*models.CatalogEntry, error)
}

// RateLimiter admits or rejects a user's search.
type RateLimiter interface {
	Allow(userID int64) bool
}

// MessageTracker records messages posted to the search room so they can be
// deleted later.
type MessageTracker interface {
	Track(ctx context.Context, chatID, messageID int64) error
}

type Config struct {
	SearchRoomID  int64
	StorageRoomID int64
	// AdminID receives commit failure alerts when non-zero.
	AdminID         int64
	InviteURL       string
	SuggestionChars int
}

type Bot struct {
	messenger Messenger
	ingest    Ingestor
	search    Searcher
	limiter   RateLimiter
	tracker   MessageTracker
	cfg       Config
}

func New(messenger Messenger, ingestor Ingestor, searcher Searcher, limiter RateLimiter, tracker MessageTracker, cfg Config) *Bot {
	if cfg.SuggestionChars <= 0 {
		cfg.SuggestionChars = search.DefaultSuggestionChars
	}
	return &Bot{
		messenger: messenger,
		ingest:    ingestor,
		search:    searcher,
		limiter:   limiter,
		tracker:   tracker,
		cfg:       cfg,
	}
}

// Handle processes one event. Events of a single user must not be handled
// concurrently.
func (b *Bot) Handle(ctx context.Context, ev models.Event) error {
	switch ev.Kind {
	case models.EventStart:
		return b.handleStart(ctx, ev)
	case models.EventDocument, models.EventPhoto:
		return b.handleUpload(ctx, ev)
	case models.EventText:
		return b.handleSearch(ctx, ev)
	case models.EventCallback:
		return b.handleCallback(ctx, ev)
	case models.EventNewMembers:
		return b.handleNewMembers(ctx, ev)
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind)
	}
}

func (b *Bot) handleStart(ctx context.Context, ev models.Event) error {
	var buttons []Button
	if b.cfg.InviteURL != "" {
		buttons = []Button{{Text: textInviteButton, URL: b.cfg.InviteURL}}
	}
	return b.reply(ctx, ev.ChatID, greeting(ev.UserName), buttons)
}

func (b *Bot) handleUpload(ctx context.Context, ev models.Event) error {
	up := ingest.Upload{
		UserID:   ev.UserID,
		ChatID:   ev.ChatID,
		Caption:  ev.Caption,
		Document: ev.Document,
		Photos:   ev.Photos,
	}

	var (
		out ingest.Outcome
		err error
	)
	if ev.Kind == models.EventDocument {
		out, err = b.ingest.HandleDocument(ctx, up)
	} else {
		out, err = b.ingest.HandlePhoto(ctx, up)
	}

	switch {
	case errs.Is(err, errs.CodeUploadPolicyViolation):
		return b.reply(ctx, ev.ChatID, textWrongStorageRoom, nil)
	case err != nil && !errs.Is(err, errs.CodeCommitFailure):
		logging.Warn().Err(err).Int64("user_id", ev.UserID).Msg("upload rejected")
		return b.reply(ctx, ev.ChatID, textUploadIncomplete, nil)
	}

	ack := textImageReceived
	if ev.Kind == models.EventDocument {
		ack = filesReceived(out.Files)
	}
	if replyErr := b.reply(ctx, ev.ChatID, ack, nil); replyErr != nil {
		logging.Warn().Err(replyErr).Int64("user_id", ev.UserID).Msg("upload acknowledgement not delivered")
	}

	if err != nil {
		b.alertAdmin(ctx, ev.UserID, err)
		return b.reply(ctx, ev.ChatID, textCommitFailed, nil)
	}
	if out.State != ingest.StateCommitted || out.Entry == nil {
		return nil
	}

	name := out.Entry.Name
	if replyErr := b.reply(ctx, ev.ChatID, movieAdded(name), nil); replyErr != nil {
		logging.Warn().Err(replyErr).Str("entry_id", out.Entry.ID).Msg("commit confirmation not delivered")
	}
	if b.cfg.SearchRoomID != 0 {
		return b.reply(ctx, b.cfg.SearchRoomID, newMovieNotice(name), nil)
	}
	return nil
}

func (b *Bot) handleSearch(ctx context.Context, ev models.Event) error {
	if ev.ChatID != b.cfg.SearchRoomID {
		return b.reply(ctx, ev.ChatID, textWrongSearchRoom, nil)
	}
	if b.limiter != nil && !b.limiter.Allow(ev.UserID) {
		metrics.RateLimited.Inc()
		return b.reply(ctx, ev.ChatID, textRateLimited, nil)
	}

	query := sanitize(strings.TrimSpace(ev.Text))
	res, err := b.search.Search(ctx, query)
	if err != nil {
		if errs.Is(err, errs.CodeInvalidQuery) {
			metrics.RecordSearch("invalid")
			return b.reply(ctx, ev.ChatID, textEmptyQuery, nil)
		}
		metrics.RecordSearch("error")
		logging.Error().Err(err).Int64("user_id", ev.UserID).Str("query", query).Msg("search failed")
		return b.reply(ctx, ev.ChatID, textSearchFailed, nil)
	}
	metrics.RecordSearch(res.Kind.String())

	switch res.Kind {
	case search.KindDirect:
		// A lost header is already counted by reply; the entries still go out.
		_ = b.reply(ctx, ev.ChatID, resultsHeader(len(res.Direct), res.Query), nil)
		for _, entry := range res.Direct {
			b.deliverEntry(ctx, ev.ChatID, entry)
		}
		return nil
	case search.KindSuggestions:
		if len(res.Suggestions) == 0 {
			return b.reply(ctx, ev.ChatID, textNoSuggestions, nil)
		}
		buttons := make([]Button, 0, len(res.Suggestions))
		for _, s := range res.Suggestions {
			buttons = append(buttons, Button{Text: sanitize(s.Name), Data: callbackSearchPrefix + s.ID})
		}
		return b.reply(ctx, ev.ChatID, textSuggestionsHeader, buttons)
	default:
		return b.reply(ctx, ev.ChatID, queryTooShort(b.cfg.SuggestionChars), nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, ev models.Event) error {
	id, ok := strings.CutPrefix(ev.CallbackData, callbackSearchPrefix)
	if !ok {
		logging.Debug().Str("data", ev.CallbackData).Msg("ignoring unknown callback")
		return nil
	}
	entry, err := b.search.Lookup(ctx, id)
	if err != nil {
		if errs.Is(err, errs.CodeNotFound) || errs.Is(err, errs.CodeInvalidQuery) {
			return b.reply(ctx, ev.ChatID, textEntryGone, nil)
		}
		logging.Error().Err(err).Str("entry_id", id).Msg("suggestion lookup failed")
		return b.reply(ctx, ev.ChatID, textSearchFailed, nil)
	}
	b.deliverEntry(ctx, ev.ChatID, entry)
	return nil
}

func (b *Bot) handleNewMembers(ctx context.Context, ev models.Event) error {
	for _, name := range ev.NewMembers {
		if err := b.reply(ctx, ev.ChatID, welcome(name), nil); err != nil {
			logging.Warn().Err(err).Int64("chat_id", ev.ChatID).Msg("welcome not delivered")
		}
	}
	return nil
}

// deliverEntry sends the poster and every file of entry. Failures are
// logged per item and never stop the rest of the batch.
func (b *Bot) deliverEntry(ctx context.Context, chatID int64, entry *models.CatalogEntry) {
	if !entry.HasMedia() {
		if err := b.reply(ctx, chatID, mediaMissing(entry.Name), nil); err != nil {
			logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("entry notice not delivered")
		}
		return
	}

	id, err := b.messenger.SendPhoto(ctx, chatID, entry.Media.Image.AssetRef, sanitize(entryCaption(entry.Name)))
	if err != nil {
		b.deliveryFailed("send_photo", chatID, entry.ID, err)
	} else {
		b.track(ctx, chatID, id)
	}
	for _, doc := range entry.Media.Documents {
		id, err := b.messenger.SendDocument(ctx, chatID, doc.AssetRef)
		if err != nil {
			b.deliveryFailed("send_document", chatID, entry.ID, err)
			continue
		}
		b.track(ctx, chatID, id)
	}
}

// reply sends a text message and tracks it when it lands in the search room.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, buttons []Button) error {
	id, err := b.messenger.SendText(ctx, chatID, sanitize(text), buttons)
	if err != nil {
		b.deliveryFailed("send_text", chatID, "", err)
		return errs.Wrap(errs.CodeDeliveryFailure, err, "send text")
	}
	b.track(ctx, chatID, id)
	return nil
}

func (b *Bot) alertAdmin(ctx context.Context, userID int64, cause error) {
	if b.cfg.AdminID == 0 {
		return
	}
	if _, err := b.messenger.SendText(ctx, b.cfg.AdminID, sanitize(commitAlert(userID, cause)), nil); err != nil {
		b.deliveryFailed("admin_alert", b.cfg.AdminID, "", err)
	}
}

func (b *Bot) track(ctx context.Context, chatID, messageID int64) {
	if b.tracker == nil || chatID != b.cfg.SearchRoomID || messageID == 0 {
		return
	}
	if err := b.tracker.Track(ctx, chatID, messageID); err != nil {
		logging.Warn().Err(err).Int64("chat_id", chatID).Int64("message_id", messageID).Msg("track message failed")
	}
}

func (b *Bot) deliveryFailed(op string, chatID int64, entryID string, err error) {
	metrics.RecordDeliveryFailure(op)
	ev := logging.Warn().Err(err).Str("operation", op).Int64("chat_id", chatID)
	if entryID != "" {
		ev = ev.Str("entry_id", entryID)
	}
	ev.Msg("delivery failed")
}
