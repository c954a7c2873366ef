package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type answer struct {
	alertID string
	ongoing bool
}

type fakeResponder struct {
	active  map[string]bool
	answers []answer
}

func (f *fakeResponder) RespondFollowUp(_ context.Context, alertID string, stillOngoing bool) (domain.Alert, bool) {
	f.answers = append(f.answers, answer{alertID, stillOngoing})
	if !f.active[alertID] {
		return domain.Alert{}, false
	}
	if !stillOngoing {
		f.active[alertID] = false
	}
	return domain.Alert{ID: alertID, AreaName: "Koramangala", IsActive: stillOngoing}, true
}

type fakeAnswerer struct {
	params []*bot.AnswerCallbackQueryParams
	err    error
}

func (f *fakeAnswerer) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	f.params = append(f.params, p)
	return f.err == nil, f.err
}

func TestReplies_Handle(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantAnswers []answer
		wantText    string
	}{
		{"still ongoing", "followup:alert-1:yes", []answer{{"alert-1", true}}, "stays active"},
		{"cleared", "followup:alert-1:no", []answer{{"alert-1", false}}, "marked clear"},
		{"inactive alert", "followup:alert-9:no", []answer{{"alert-9", false}}, "no longer active"},
		{"unknown answer", "followup:alert-1:maybe", nil, "not understood"},
		{"foreign data", "vote:alert-1", nil, "not understood"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &fakeResponder{active: map[string]bool{"alert-1": true}}
			ans := &fakeAnswerer{}

			NewReplies(resp, discardLogger()).Handle(context.Background(), ans, &models.CallbackQuery{ID: "cb-1", Data: tt.data})

			assert.Equal(t, tt.wantAnswers, resp.answers)
			require.Len(t, ans.params, 1)
			assert.Equal(t, "cb-1", ans.params[0].CallbackQueryID)
			assert.Contains(t, ans.params[0].Text, tt.wantText)
		})
	}
}

func TestReplies_AnswerFailureIsLogged(t *testing.T) {
	resp := &fakeResponder{active: map[string]bool{"alert-1": true}}
	ans := &fakeAnswerer{err: errors.New("query is too old")}

	NewReplies(resp, discardLogger()).Handle(context.Background(), ans, &models.CallbackQuery{ID: "cb-1", Data: "followup:alert-1:no"})

	assert.Equal(t, []answer{{"alert-1", false}}, resp.answers)
	assert.False(t, resp.active["alert-1"])
}

func TestReplies_NilQuery(t *testing.T) {
	ans := &fakeAnswerer{}
	NewReplies(&fakeResponder{}, discardLogger()).Handle(context.Background(), ans, nil)
	assert.Empty(t, ans.params)
}

func TestParseFollowUpData_AlertIDWithColon(t *testing.T) {
	id, ongoing, err := parseFollowUpData("followup:city:42:yes")
	require.NoError(t, err)
	assert.Equal(t, "city:42", id)
	assert.True(t, ongoing)

	_, _, err = parseFollowUpData("followup::yes")
	assert.Error(t, err)
}
