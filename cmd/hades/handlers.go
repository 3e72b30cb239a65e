package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/AlexYaroshenko/hades/internal/app"
	"github.com/AlexYaroshenko/hades/internal/dispatch"
	"github.com/AlexYaroshenko/hades/internal/i18n"
	"github.com/AlexYaroshenko/hades/internal/store"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

var greetings = map[string]string{
	"en": "Hello, %s! Send /lang to pick a language.",
	"de": "Hallo, %s! Sende /lang, um eine Sprache zu wählen.",
	"fr": "Bonjour, %s ! Envoyez /lang pour choisir une langue.",
	"es": "¡Hola, %s! Envía /lang para elegir un idioma.",
	"it": "Ciao, %s! Invia /lang per scegliere una lingua.",
}

var languageOrder = []string{"en", "de", "fr", "es", "it"}

const (
	statusIdle         = 0
	statusPickLanguage = 1
)

// defaultHandlers is a small echo-style bot that exercises the stores:
// /start greets in the chat's language, /lang offers a keyboard and the
// callback stores the choice.
func defaultHandlers(a *app.App) dispatch.Handlers {
	log := a.Logger()
	client := a.Client()

	return dispatch.Handlers{
		Message: func(ctx context.Context, u telegram.Update, chatID int64) error {
			msg := u.Message
			if msg.Chat == nil {
				return nil
			}
			cmd := strings.Fields(msg.Text)
			if len(cmd) == 0 {
				return nil
			}
			name, _, _ := strings.Cut(cmd[0], "@")
			switch name {
			case "/start":
				if err := seedLanguage(ctx, a, chatID, msg.From); err != nil {
					return err
				}
				setStatus(ctx, a, chatID, statusIdle)
				lang, err := a.Languages().GetLanguage(ctx, chatID)
				if err != nil {
					return err
				}
				_, err = client.SendMessage(ctx, telegram.SendMessageParams{
					ChatID: msg.Chat.ID,
					Text:   greet(lang, telegram.FormatUserName(msg.From)),
				})
				return err
			case "/lang":
				setStatus(ctx, a, chatID, statusPickLanguage)
				_, err := client.SendMessage(ctx, telegram.SendMessageParams{
					ChatID:      msg.Chat.ID,
					Text:        "🌐",
					ReplyMarkup: languageKeyboard(),
				})
				return err
			}
			log.Debug().Int64("chat_id", chatID).Msg("ignoring message")
			return nil
		},

		CallbackQuery: func(ctx context.Context, u telegram.Update, chatID int64) error {
			q := u.CallbackQuery
			code, ok := strings.CutPrefix(q.Data, "lang:")
			if !ok {
				return client.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{CallbackQueryID: q.ID})
			}
			if a.Status() != nil {
				status, err := a.Status().GetStatus(ctx, chatID, store.DefaultStatus)
				if err != nil {
					return err
				}
				if status != statusPickLanguage {
					return client.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{CallbackQueryID: q.ID})
				}
			}
			if err := a.Languages().SetLanguage(ctx, chatID, code); err != nil {
				var ce *store.ConfigurationError
				if !errors.As(err, &ce) {
					return err
				}
				return client.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
					CallbackQueryID: q.ID,
					Text:            "❌",
					ShowAlert:       true,
				})
			}
			setStatus(ctx, a, chatID, statusIdle)
			return client.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
				CallbackQueryID: q.ID,
				Text:            "✅ " + strings.ToUpper(i18n.OrDefault(code)),
			})
		},

		InlineQuery: func(ctx context.Context, u telegram.Update, _ int64) error {
			return client.AnswerInlineQuery(ctx, telegram.AnswerInlineQueryParams{
				InlineQueryID: u.InlineQuery.ID,
				Results:       []any{},
			})
		},
	}
}

// seedLanguage stores the language the Telegram client reports.
func seedLanguage(ctx context.Context, a *app.App, chatID int64, from *telegram.User) error {
	if from == nil || from.LanguageCode == "" {
		return nil
	}
	err := a.Languages().SetLanguage(ctx, chatID, i18n.OrDefault(from.LanguageCode))
	var ce *store.ConfigurationError
	if errors.As(err, &ce) {
		return nil
	}
	return err
}

func setStatus(ctx context.Context, a *app.App, chatID int64, status int) {
	if a.Status() == nil {
		return
	}
	if err := a.Status().SetStatus(ctx, chatID, status); err != nil {
		log := a.Logger()
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("status update failed")
	}
}

func greet(lang, name string) string {
	tmpl, ok := greetings[lang]
	if !ok {
		tmpl = greetings[i18n.Default]
	}
	return fmt.Sprintf(tmpl, html.EscapeString(name))
}

func languageKeyboard() telegram.InlineKeyboardMarkup {
	row := make([]telegram.InlineKeyboardButton, 0, len(languageOrder))
	for _, code := range languageOrder {
		row = append(row, telegram.InlineKeyboardButton{Text: strings.ToUpper(code), CallbackData: "lang:" + code})
	}
	return telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}
