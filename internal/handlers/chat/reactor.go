package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sunopiusme/rlguardbot/internal/bot"
	"github.com/sunopiusme/rlguardbot/internal/config"
	"github.com/sunopiusme/rlguardbot/internal/moderation"
)

// Reactor feeds group messages into the moderation coordinator and serves
// the chat-facing commands. It never decides or enforces anything itself.
type Reactor struct {
	s           bot.Service
	coordinator *moderation.Coordinator
	rules       *config.RuleSet
}

func NewReactor(s bot.Service, coordinator *moderation.Coordinator, rules *config.RuleSet) *Reactor {
	r := &Reactor{
		s:           s,
		coordinator: coordinator,
		rules:       rules,
	}
	r.getLogEntry().Debug("created new reactor")
	return r
}

func (r *Reactor) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	entry := r.getLogEntry().WithFields(log.Fields{"method": "Handle"})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u.Message == nil || chat == nil || user == nil {
		return true, nil
	}
	msg := u.Message
	if user.IsBot {
		return true, nil
	}

	if msg.IsCommand() {
		if err := r.handleCommand(ctx, msg, chat, user); err != nil {
			entry.WithField("error", err.Error()).Error("error handling command")
			return true, err
		}
		return true, nil
	}

	if chat.IsPrivate() {
		return true, nil
	}

	if err := r.handleMessage(ctx, msg, chat, user); err != nil {
		entry.WithField("error", err.Error()).Error("error handling message")
		return true, err
	}
	return true, nil
}

func (r *Reactor) handleMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	decision, err := r.coordinator.ProcessMessage(ctx, &moderation.InboundMessage{
		ChatID:    chat.ID,
		UserID:    user.ID,
		MessageID: msg.MessageID,
		Text:      text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	})
	if err != nil {
		return errors.WithMessage(err, "cant process message")
	}
	if decision == nil {
		return nil
	}

	entry := r.getLogEntry().WithFields(log.Fields{
		"decision_id": decision.DecisionID,
		"chat_id":     chat.ID,
		"user_id":     user.ID,
	})
	switch {
	case decision.Outcome != nil && decision.Outcome.Review != nil:
		entry.WithField("reason", decision.Outcome.Review.Reason).Info("queued for review")
	case decision.Outcome != nil && decision.Outcome.Action != nil:
		entry.WithFields(log.Fields{
			"action":   decision.Outcome.Action.Kind,
			"executed": decision.Executed,
		}).Info("moderation action decided")
	}
	return nil
}

func (r *Reactor) getLogEntry() *log.Entry {
	return log.WithField("context", "reactor")
}
