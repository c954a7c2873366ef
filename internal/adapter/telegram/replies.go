package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// followUpPrefix starts the callback data of follow-up buttons:
// "followup:<alert id>:yes|no".
const followUpPrefix = "followup:"

// FollowUpResponder applies a yes/no answer to a "still ongoing?" prompt.
type FollowUpResponder interface {
	RespondFollowUp(ctx context.Context, alertID string, stillOngoing bool) (domain.Alert, bool)
}

// CallbackAnswerer is the subset of *bot.Bot used to acknowledge button presses.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Replies turns follow-up button presses into follow-up responses.
type Replies struct {
	responder FollowUpResponder
	logger    *slog.Logger
}

// NewReplies creates a Replies handler.
func NewReplies(responder FollowUpResponder, logger *slog.Logger) *Replies {
	return &Replies{responder: responder, logger: logger}
}

// Handle applies one button press and acknowledges it to the user.
func (r *Replies) Handle(ctx context.Context, answerer CallbackAnswerer, q *models.CallbackQuery) {
	if q == nil {
		return
	}
	alertID, ongoing, err := parseFollowUpData(q.Data)
	var text string
	switch {
	case err != nil:
		r.logger.Warn("unrecognised follow-up answer", "data", q.Data, "error", err)
		text = "Sorry, that answer was not understood."
	default:
		a, ok := r.responder.RespondFollowUp(ctx, alertID, ongoing)
		switch {
		case !ok:
			text = "This alert is no longer active."
		case a.IsActive:
			text = fmt.Sprintf("Thanks, the alert for %s stays active.", a.AreaName)
		default:
			text = fmt.Sprintf("Thanks, %s is marked clear.", a.AreaName)
		}
		r.logger.Info("follow-up answered",
			"alert_id", alertID,
			"still_ongoing", ongoing,
			"applied", ok,
			"user_id", q.From.ID,
		)
	}

	if _, err := answerer.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
		Text:            text,
	}); err != nil {
		r.logger.Warn("answer telegram callback failed", "error", err)
	}
}

func followUpKeyboard(alertID string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "Yes, still flooded", CallbackData: followUpPrefix + alertID + ":yes"},
			{Text: "No, cleared", CallbackData: followUpPrefix + alertID + ":no"},
		}},
	}
}

func parseFollowUpData(data string) (string, bool, error) {
	rest, ok := strings.CutPrefix(data, followUpPrefix)
	if !ok {
		return "", false, fmt.Errorf("missing %q prefix", followUpPrefix)
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", false, fmt.Errorf("malformed follow-up data %q", data)
	}
	switch rest[i+1:] {
	case "yes":
		return rest[:i], true, nil
	case "no":
		return rest[:i], false, nil
	default:
		return "", false, fmt.Errorf("unknown answer %q", rest[i+1:])
	}
}
