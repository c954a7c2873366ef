// Package telegram delivers alert broadcasts to Telegram chats.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/notify"
)

// Sender is the subset of *bot.Bot used for delivery.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier broadcasts alerts to a fixed set of chats, one message per chat.
// Follow-up prompts carry inline yes/no buttons answered through Listen.
type Notifier struct {
	sender  Sender
	bot     *bot.Bot
	chatIDs []int64
	limiter *rate.Limiter
}

// New creates a Notifier backed by a Telegram bot.
func New(token string, chatIDs []int64, ratePerSecond int) (*Notifier, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	n := NewWithSender(b, chatIDs, ratePerSecond)
	n.bot = b
	return n, nil
}

// Listen long-polls Telegram for follow-up button presses and hands them to
// replies until ctx is cancelled. It returns immediately for notifiers built
// with NewWithSender.
func (n *Notifier) Listen(ctx context.Context, replies *Replies) {
	if n.bot == nil {
		return
	}
	n.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, followUpPrefix, bot.MatchTypePrefix,
		func(ctx context.Context, b *bot.Bot, update *models.Update) {
			replies.Handle(ctx, b, update.CallbackQuery)
		})
	n.bot.Start(ctx)
}

// NewWithSender creates a Notifier around an existing sender.
func NewWithSender(sender Sender, chatIDs []int64, ratePerSecond int) *Notifier {
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	return &Notifier{
		sender:  sender,
		chatIDs: chatIDs,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
	}
}

// Broadcast implements domain.Notifier. Each delivered chat counts as one
// notified user.
func (n *Notifier) Broadcast(ctx context.Context, a domain.Alert, aud domain.Audience) domain.BroadcastResult {
	text := notify.Format(a, aud.Purpose)
	var res domain.BroadcastResult
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("telegram rate limit: %w", err))
			break
		}
		params := &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		}
		if aud.Purpose == domain.PurposeFollowUp {
			params.ReplyMarkup = followUpKeyboard(a.ID)
		}
		_, err := n.sender.SendMessage(ctx, params)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("send telegram message to chat %d: %w", chatID, err))
			continue
		}
		res.SentCount++
	}
	return res
}
