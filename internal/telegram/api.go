package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	ParseModeHTML = "HTML"

	// DefaultInlineCacheTime is the answerInlineQuery cache_time used when none is given.
	DefaultInlineCacheTime = 300
)

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit, timeout int) ([]Update, error) {
	res, err := c.Fetch(ctx, "getUpdates", Params{
		"offset":  offset,
		"limit":   limit,
		"timeout": timeout,
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(res, &updates); err != nil {
		return nil, &TransportError{Endpoint: "getUpdates", Err: fmt.Errorf("decode updates: %w", err)}
	}
	return updates, nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat Chat
	if err := c.call(ctx, "getChat", Params{"chat_id": chatID}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

type SendMessageParams struct {
	ChatID           int64
	Text             string
	ParseMode        string // HTML when empty
	ReplyMarkup      any
	ReplyToMessageID int64
	// Previews are disabled unless asked for.
	EnableWebPagePreview bool
	DisableNotification  bool
}

func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	params := Params{
		"chat_id":                  p.ChatID,
		"text":                     p.Text,
		"parse_mode":               orDefault(p.ParseMode, ParseModeHTML),
		"disable_web_page_preview": !p.EnableWebPagePreview,
		"disable_notification":     p.DisableNotification,
		"reply_markup":             p.ReplyMarkup,
	}
	if p.ReplyToMessageID != 0 {
		params["reply_to_message_id"] = p.ReplyToMessageID
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageTextParams targets either ChatID+MessageID or InlineMessageID.
type EditMessageTextParams struct {
	ChatID                int64
	MessageID             int64
	InlineMessageID       string
	Text                  string
	ParseMode             string // HTML when empty
	ReplyMarkup           any
	DisableWebPagePreview bool
}

func (c *Client) EditMessageText(ctx context.Context, p EditMessageTextParams) error {
	params, err := messageTarget(p.ChatID, p.MessageID, p.InlineMessageID)
	if err != nil {
		return err
	}
	params["text"] = p.Text
	params["parse_mode"] = orDefault(p.ParseMode, ParseModeHTML)
	params["disable_web_page_preview"] = p.DisableWebPagePreview
	params["reply_markup"] = p.ReplyMarkup
	return c.call(ctx, "editMessageText", params, nil)
}

type EditMessageReplyMarkupParams struct {
	ChatID          int64
	MessageID       int64
	InlineMessageID string
	ReplyMarkup     any
}

func (c *Client) EditMessageReplyMarkup(ctx context.Context, p EditMessageReplyMarkupParams) error {
	params, err := messageTarget(p.ChatID, p.MessageID, p.InlineMessageID)
	if err != nil {
		return err
	}
	params["reply_markup"] = p.ReplyMarkup
	return c.call(ctx, "editMessageReplyMarkup", params, nil)
}

// AnswerCallbackQueryParams with an empty Text just stops the button spinner.
type AnswerCallbackQueryParams struct {
	CallbackQueryID string
	Text            string
	ShowAlert       bool
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, p AnswerCallbackQueryParams) error {
	if p.CallbackQueryID == "" {
		return errors.New("telegram: answerCallbackQuery: callback_query_id is required")
	}
	return c.call(ctx, "answerCallbackQuery", Params{
		"callback_query_id": p.CallbackQueryID,
		"text":              p.Text,
		"show_alert":        p.ShowAlert,
	}, nil)
}

type AnswerInlineQueryParams struct {
	InlineQueryID     string
	Results           any // sent as [] when nil
	SwitchPMText      string
	SwitchPMParameter string
	// Answers are personal unless Shared is set.
	Shared    bool
	CacheTime int // DefaultInlineCacheTime when zero
}

func (c *Client) AnswerInlineQuery(ctx context.Context, p AnswerInlineQueryParams) error {
	if p.InlineQueryID == "" {
		return errors.New("telegram: answerInlineQuery: inline_query_id is required")
	}
	results := p.Results
	if results == nil {
		results = json.RawMessage("[]")
	}
	cacheTime := p.CacheTime
	if cacheTime == 0 {
		cacheTime = DefaultInlineCacheTime
	}
	params := Params{
		"inline_query_id": p.InlineQueryID,
		"results":         results,
		"is_personal":     !p.Shared,
		"cache_time":      cacheTime,
	}
	if p.SwitchPMText != "" {
		params["switch_pm_text"] = p.SwitchPMText
		params["switch_pm_parameter"] = p.SwitchPMParameter
	}
	return c.call(ctx, "answerInlineQuery", params, nil)
}

// call fetches and decodes the result into out when out is non-nil.
func (c *Client) call(ctx context.Context, endpoint string, params Params, out any) error {
	res, err := c.Fetch(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if out == nil || len(res) == 0 {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

func messageTarget(chatID, messageID int64, inlineMessageID string) (Params, error) {
	if inlineMessageID != "" {
		return Params{"inline_message_id": inlineMessageID}, nil
	}
	if chatID == 0 || messageID == 0 {
		return nil, errors.New("telegram: chat_id and message_id or inline_message_id are required")
	}
	return Params{"chat_id": chatID, "message_id": messageID}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
