package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// TelegramChannel sends notifications as Telegram messages. The reminder's
// owner id is interpreted as the target chat id.
type TelegramChannel struct {
	bot *tele.Bot
	log zerolog.Logger
}

func NewTelegramChannel(token string, log zerolog.Logger) (*TelegramChannel, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramChannel{
		bot: b,
		log: log.With().Str("component", "notify-telegram").Logger(),
	}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(_ context.Context, n Notification) error {
	chatID, err := strconv.ParseInt(n.OwnerID, 10, 64)
	if err != nil {
		return fmt.Errorf("owner id %q is not a telegram chat id: %w", n.OwnerID, err)
	}
	if _, err := c.bot.Send(tele.ChatID(chatID), "💧 "+n.Message); err != nil {
		return err
	}
	c.log.Debug().Str("reminder_id", n.ReminderID).Int64("chat_id", chatID).Msg("notification sent")
	return nil
}
