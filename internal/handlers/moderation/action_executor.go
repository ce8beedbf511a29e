package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sunopiusme/rlguardbot/internal/bot"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
	"github.com/sunopiusme/rlguardbot/internal/i18n"
	"github.com/sunopiusme/rlguardbot/internal/moderation"
)

const MsgNoPrivileges = "not enough rights"

// ActionExecutor applies decided enforcement actions through the bot API.
// It does not decide anything; failures bubble up as ErrExecution so the
// caller can record the enforcement gap.
type ActionExecutor struct {
	s bot.Service
}

func NewActionExecutor(s bot.Service) *ActionExecutor {
	return &ActionExecutor{s: s}
}

func (e *ActionExecutor) Execute(ctx context.Context, action *moderation.EnforcementAction) error {
	entry := e.getLogEntry().WithFields(log.Fields{
		"chat_id": action.ChatID,
		"user_id": action.TargetUserID,
		"action":  action.Kind,
	})

	if action.DeleteMessage && action.MessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, e.s.GetBot(), action.ChatID, action.MessageID); err != nil {
			entry.WithError(err).Warn("cant delete message")
		}
	}

	switch action.Kind {
	case moderation.ActionNone:
		return nil
	case moderation.ActionWarn:
		return e.warn(ctx, action)
	case moderation.ActionMute:
		until := time.Now().Add(action.Duration).Unix()
		if err := bot.RestrictChatting(ctx, e.s.GetBot(), action.TargetUserID, action.ChatID, until); err != nil {
			return withExecutionError(err, "restrict")
		}
		e.announce(ctx, action, "User has been muted")
		return nil
	case moderation.ActionBan:
		var until int64
		if action.Duration > 0 {
			until = time.Now().Add(action.Duration).Unix()
		}
		if err := bot.BanUserFromChat(ctx, e.s.GetBot(), action.TargetUserID, action.ChatID, until); err != nil {
			return withExecutionError(err, "ban")
		}
		e.announce(ctx, action, "User has been banned")
		return nil
	}
	return errors.Wrapf(guarderrors.ErrExecution, "unknown action kind %q", action.Kind)
}

func (e *ActionExecutor) warn(ctx context.Context, action *moderation.EnforcementAction) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	lang := e.s.GetLanguage(ctx, action.ChatID, nil)
	text := fmt.Sprintf("⚠️ %s: %s", i18n.Get("Warning", lang), action.Reason)
	msg := api.NewMessage(action.ChatID, text)
	if action.MessageID != 0 && !action.DeleteMessage {
		msg.ReplyParameters.MessageID = action.MessageID
		msg.ReplyParameters.ChatID = action.ChatID
		msg.ReplyParameters.AllowSendingWithoutReply = true
	}
	msg.DisableNotification = true
	if _, err := e.s.GetBot().Send(msg); err != nil {
		return withExecutionError(err, "warn")
	}
	return nil
}

func (e *ActionExecutor) announce(ctx context.Context, action *moderation.EnforcementAction, what string) {
	lang := e.s.GetLanguage(ctx, action.ChatID, nil)
	text := fmt.Sprintf("%s: %s", i18n.Get(what, lang), action.Reason)
	msg := api.NewMessage(action.ChatID, text)
	msg.DisableNotification = true
	if _, err := e.s.GetBot().Send(msg); err != nil {
		e.getLogEntry().WithError(err).Debug("cant announce action")
	}
}

func (e *ActionExecutor) getLogEntry() *log.Entry {
	return log.WithField("context", "action_executor")
}

func withExecutionError(err error, operation string) error {
	if strings.Contains(err.Error(), MsgNoPrivileges) {
		return errors.Wrapf(guarderrors.ErrExecution, "no privileges to %s", operation)
	}
	return errors.Wrapf(guarderrors.ErrExecution, "%s: %s", operation, err.Error())
}
