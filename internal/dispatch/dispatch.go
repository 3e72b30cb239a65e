package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/hades/internal/metrics"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

// Kind is the payload category of an update.
type Kind int

const (
	Unknown Kind = iota
	Message
	CallbackQuery
	InlineQuery
	ChosenInlineResult
)

func (k Kind) String() string {
	switch k {
	case Message:
		return "message"
	case CallbackQuery:
		return "callback_query"
	case InlineQuery:
		return "inline_query"
	case ChosenInlineResult:
		return "chosen_inline_result"
	default:
		return "unknown"
	}
}

// Classify picks the kind from the payload present in u. If several are
// present the first of message, callback_query, inline_query,
// chosen_inline_result wins.
func Classify(u telegram.Update) Kind {
	switch {
	case u.Message != nil:
		return Message
	case u.CallbackQuery != nil:
		return CallbackQuery
	case u.InlineQuery != nil:
		return InlineQuery
	case u.ChosenInlineResult != nil:
		return ChosenInlineResult
	default:
		return Unknown
	}
}

// ExtractChatID returns the sender id of the payload selected by kind, or 0.
func ExtractChatID(u telegram.Update, kind Kind) int64 {
	var from *telegram.User
	switch kind {
	case Message:
		if u.Message != nil {
			from = u.Message.From
		}
	case CallbackQuery:
		if u.CallbackQuery != nil {
			from = u.CallbackQuery.From
		}
	case InlineQuery:
		if u.InlineQuery != nil {
			from = u.InlineQuery.From
		}
	case ChosenInlineResult:
		if u.ChosenInlineResult != nil {
			from = u.ChosenInlineResult.From
		}
	}
	if from == nil {
		return 0
	}
	return from.ID
}

// HandlerFunc handles one update of a known kind for chatID.
type HandlerFunc func(ctx context.Context, u telegram.Update, chatID int64) error

// Handlers is the registry of application callbacks. A nil entry drops
// updates of that kind.
type Handlers struct {
	Message            HandlerFunc
	CallbackQuery      HandlerFunc
	InlineQuery        HandlerFunc
	ChosenInlineResult HandlerFunc
}

func (h Handlers) lookup(kind Kind) HandlerFunc {
	switch kind {
	case Message:
		return h.Message
	case CallbackQuery:
		return h.CallbackQuery
	case InlineQuery:
		return h.InlineQuery
	case ChosenInlineResult:
		return h.ChosenInlineResult
	default:
		return nil
	}
}

type Dispatcher struct {
	handlers Handlers
	log      zerolog.Logger
}

func New(handlers Handlers, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{handlers: handlers, log: log}
}

// Dispatch routes u to its handler and returns u's update_id. The chat id
// is available to the handler through ChatIDFromContext as well. Handler
// errors and panics come back as *HandlerError.
func (d *Dispatcher) Dispatch(ctx context.Context, u telegram.Update) (updateID int64, err error) {
	updateID = u.UpdateID
	kind := Classify(u)
	metrics.IncUpdate(kind.String())
	if kind == Unknown {
		d.log.Debug().Int64("update_id", updateID).Msg("dropping update with no known payload")
		return updateID, nil
	}

	chatID := ExtractChatID(u, kind)
	h := d.handlers.lookup(kind)
	if h == nil {
		d.log.Debug().Int64("update_id", updateID).Str("kind", kind.String()).Msg("no handler registered")
		return updateID, nil
	}

	d.log.Debug().
		Int64("update_id", updateID).
		Str("kind", kind.String()).
		Int64("chat_id", chatID).
		Msg("dispatching update")

	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{UpdateID: updateID, Kind: kind, ChatID: chatID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := h(WithChatID(ctx, chatID), u, chatID); herr != nil {
		return updateID, &HandlerError{UpdateID: updateID, Kind: kind, ChatID: chatID, Err: herr}
	}
	return updateID, nil
}

// HandlerError is a failed or panicking handler invocation.
type HandlerError struct {
	UpdateID int64
	Kind     Kind
	ChatID   int64
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("dispatch %s update %d (chat %d): %v", e.Kind, e.UpdateID, e.ChatID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type chatIDKey struct{}

// WithChatID stores the current chat id in ctx.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// ChatIDFromContext returns the chat id of the update being handled.
func ChatIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(chatIDKey{}).(int64)
	return id, ok
}
