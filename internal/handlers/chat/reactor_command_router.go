package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sunopiusme/rlguardbot/internal/bot"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
	"github.com/sunopiusme/rlguardbot/internal/i18n"
	"github.com/sunopiusme/rlguardbot/internal/moderation"
)

func (r *Reactor) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	switch msg.Command() {
	case "report":
		return r.reportCommand(ctx, msg, chat, user)
	case "mystatus":
		return r.myStatusCommand(ctx, msg, chat, user)
	case "stats":
		return r.statsCommand(ctx, msg, chat, user)
	case "reports":
		return r.pendingReportsCommand(ctx, msg, chat, user)
	case "review":
		return r.reviewCommand(ctx, msg, chat, user)
	case "warn", "mute", "ban":
		return r.manualActionCommand(ctx, msg, chat, user, moderation.ActionKind(msg.Command()))
	case "unenforced":
		return r.unenforcedCommand(ctx, msg, chat, user)
	case "why":
		return r.whyCommand(ctx, msg, chat, user)
	case "rules":
		return r.rulesCommand(ctx, msg, chat, user)
	case "rep":
		return r.repCommand(ctx, msg, chat, user)
	case "top":
		return r.topCommand(ctx, msg, chat, user)
	}
	return nil
}

func (r *Reactor) reply(msg *api.Message, chat *api.Chat, text string) {
	responseMsg := api.NewMessage(chat.ID, text)
	responseMsg.ReplyParameters.MessageID = msg.MessageID
	responseMsg.ReplyParameters.ChatID = chat.ID
	responseMsg.ReplyParameters.AllowSendingWithoutReply = true
	if msg.Chat.IsForum {
		responseMsg.MessageThreadID = msg.MessageThreadID
	}
	responseMsg.DisableNotification = true
	_, _ = r.s.GetBot().Send(responseMsg)
}

// isOperator allows configured operators plus chat admins who can restrict
// members.
func (r *Reactor) isOperator(chat *api.Chat, user *api.User) bool {
	if r.s.IsAdmin(user.ID) {
		return true
	}
	member, err := r.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{
				ChatID: chat.ID,
			},
			UserID: user.ID,
		},
	})
	if err != nil {
		r.getLogEntry().WithError(err).Error("cant get chat member")
		return false
	}
	return isPrivilegedModerator(&member)
}

func (r *Reactor) reportCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if chat.IsPrivate() {
		r.reply(msg, chat, i18n.Get("This command can only be used in groups", lang))
		return nil
	}
	reported := msg.ReplyToMessage
	if reported == nil || reported.From == nil {
		r.reply(msg, chat, i18n.Get("Reply to the offending message with /report <reason>", lang))
		return nil
	}
	if reported.From.ID == user.ID {
		r.reply(msg, chat, i18n.Get("You cannot report your own message", lang))
		return nil
	}

	text := reported.Text
	if text == "" {
		text = reported.Caption
	}
	reason := strings.TrimSpace(msg.CommandArguments())
	if reason == "" {
		reason = "no reason given"
	}

	reportID, err := r.coordinator.SubmitReport(ctx, moderation.SubmitRequest{
		ChatID:       chat.ID,
		ReporterID:   user.ID,
		TargetUserID: reported.From.ID,
		MessageID:    reported.MessageID,
		MessageText:  text,
		Reason:       reason,
	})
	if err != nil {
		r.reply(msg, chat, i18n.Get("Could not submit the report", lang))
		return errors.WithMessage(err, "cant submit report")
	}

	// Drop the /report message so the target is not tipped off.
	_ = r.deleteCommandMessage(ctx, chat.ID, msg.MessageID)
	r.getLogEntry().WithFields(log.Fields{
		"report_id":   reportID,
		"chat_id":     chat.ID,
		"reporter_id": user.ID,
	}).Info("report submitted")
	return nil
}

func (r *Reactor) myStatusCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	status, err := r.coordinator.Status(ctx, chat.ID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get status")
	}
	rep, err := r.coordinator.Reputation().Get(ctx, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get reputation")
	}

	text := tool.ExecTemplate(`{{ .standing }}: {{ .level }}
{{ .warnings }}: {{ .warns }}/{{ .violations }}
{{ .reputation }}: {{ .points }} ({{ .rank }})`, map[string]any{
		"standing":   i18n.Get("Standing", lang),
		"level":      status.Level,
		"warnings":   i18n.Get("Warnings / violations", lang),
		"warns":      status.WarnCount,
		"violations": status.Violations,
		"reputation": i18n.Get("Reputation", lang),
		"points":     rep.Total,
		"rank":       rep.Rank,
	})
	if len(rep.Badges) > 0 {
		text += "\n" + strings.Join(rep.Badges, " ")
	}
	r.reply(msg, chat, text)
	return nil
}

func (r *Reactor) statsCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if !r.isOperator(chat, user) {
		r.reply(msg, chat, i18n.Get("This command is for moderators only", lang))
		return nil
	}
	stats, err := r.coordinator.Stats(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get stats")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d\n", i18n.Get("Total violations", lang), stats.Total)
	for _, vtype := range sortedKeys(stats.ByType) {
		fmt.Fprintf(&b, "  %s: %d\n", vtype, stats.ByType[vtype])
	}
	fmt.Fprintf(&b, "%s:\n", i18n.Get("Actions", lang))
	for _, action := range sortedKeys(stats.ByAction) {
		fmt.Fprintf(&b, "  %s: %d\n", action, stats.ByAction[action])
	}
	fmt.Fprintf(&b, "%s: %d (%s: %d)", i18n.Get("Reports", lang), stats.TotalReports, i18n.Get("pending", lang), stats.PendingReports)
	r.reply(msg, chat, b.String())
	return nil
}

func (r *Reactor) pendingReportsCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if !r.isOperator(chat, user) {
		r.reply(msg, chat, i18n.Get("This command is for moderators only", lang))
		return nil
	}
	pending, err := r.coordinator.PendingReports(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant list reports")
	}
	if len(pending) == 0 {
		r.reply(msg, chat, i18n.Get("No pending reports", lang))
		return nil
	}

	const maxListed = 10
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", i18n.Get("Pending reports", lang), len(pending))
	for i, report := range pending {
		if i == maxListed {
			fmt.Fprintf(&b, "…")
			break
		}
		fmt.Fprintf(&b, "#%d %s — %s\n", report.ID,
			i18n.Get("reason", lang), report.Reason)
	}
	fmt.Fprintf(&b, "%s", i18n.Get("Resolve with /review <id> approve|reject", lang))
	r.reply(msg, chat, b.String())
	return nil
}

func (r *Reactor) reviewCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if !r.isOperator(chat, user) {
		r.reply(msg, chat, i18n.Get("This command is for moderators only", lang))
		return nil
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		r.reply(msg, chat, i18n.Get("Usage: /review <id> approve|reject", lang))
		return nil
	}
	reportID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		r.reply(msg, chat, i18n.Get("Report id must be a number", lang))
		return nil
	}

	result, err := r.coordinator.Review(ctx, chat.ID, reportID, user.ID, moderation.ReviewDecision(args[1]))
	if err != nil {
		r.reply(msg, chat, reviewErrorText(err, lang))
		return nil
	}
	if result == nil {
		r.reply(msg, chat, i18n.Get("Report rejected", lang))
		return nil
	}
	r.reply(msg, chat, tool.ExecTemplate(`{{ .approved }} ({{ .action }})`, map[string]any{
		"approved": i18n.Get("Report approved", lang),
		"action":   actionText(result, lang),
	}))
	return nil
}

func reviewErrorText(err error, lang string) string {
	switch {
	case errors.Is(err, guarderrors.ErrNotFound):
		return i18n.Get("No such report", lang)
	case errors.Is(err, guarderrors.ErrAlreadyResolved):
		return i18n.Get("Report is already resolved", lang)
	case errors.Is(err, guarderrors.ErrValidation):
		return i18n.Get("Usage: /review <id> approve|reject", lang)
	}
	return i18n.Get("Could not resolve the report", lang)
}

func actionText(decision *moderation.Decision, lang string) string {
	if decision.Outcome == nil || decision.Outcome.Action == nil {
		return i18n.Get("recorded, no action", lang)
	}
	if !decision.Executed {
		return i18n.Get("decided, enforcement pending", lang)
	}
	return string(decision.Outcome.Action.Kind)
}

func (r *Reactor) manualActionCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, kind moderation.ActionKind) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if chat.IsPrivate() {
		r.reply(msg, chat, i18n.Get("This command can only be used in groups", lang))
		return nil
	}
	if !r.isOperator(chat, user) {
		r.reply(msg, chat, i18n.Get("This command is for moderators only", lang))
		return nil
	}
	target := msg.ReplyToMessage
	if target == nil || target.From == nil {
		r.reply(msg, chat, i18n.Get("This command must be used as a reply to a message", lang))
		return nil
	}

	decision, err := r.coordinator.ManualAction(ctx, user.ID, chat.ID, target.From.ID, kind)
	if err != nil {
		r.reply(msg, chat, i18n.Get("Could not apply the action", lang))
		return errors.WithMessage(err, "cant apply manual action")
	}
	_ = r.deleteCommandMessage(ctx, chat.ID, msg.MessageID)
	r.getLogEntry().WithFields(log.Fields{
		"decision_id": decision.DecisionID,
		"admin_id":    user.ID,
		"target_id":   target.From.ID,
		"action":      kind,
	}).Info("manual action applied")
	return nil
}

func (r *Reactor) unenforcedCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if !r.isOperator(chat, user) {
		r.reply(msg, chat, i18n.Get("This command is for moderators only", lang))
		return nil
	}
	records, err := r.coordinator.Unenforced(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant list unenforced records")
	}
	if len(records) == 0 {
		r.reply(msg, chat, i18n.Get("All decided actions are enforced", lang))
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", i18n.Get("Decided but not enforced", lang))
	for _, rec := range records {
		fmt.Fprintf(&b, "#%d %s %s (user %d)\n", rec.ID, rec.Action, rec.Type, rec.UserID)
	}
	r.reply(msg, chat, b.String())
	return nil
}

// whyCommand explains what the engine decided about a recent message.
func (r *Reactor) whyCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	if !r.isOperator(chat, user) {
		r.reply(msg, chat, i18n.Get("This command is for moderators only", lang))
		return nil
	}
	if msg.ReplyToMessage == nil {
		r.reply(msg, chat, i18n.Get("Reply to a message to see its decision", lang))
		return nil
	}

	decision := r.coordinator.LastDecision(chat.ID, msg.ReplyToMessage.MessageID)
	if decision == nil {
		r.reply(msg, chat, i18n.Get("No decision information for this message", lang))
		return nil
	}
	if decision.Candidate == nil {
		r.reply(msg, chat, i18n.Get("No rule fired on this message", lang))
		return nil
	}

	text := tool.ExecTemplate(`{{ .id }}
{{ .type }} ({{ printf "%.2f" .confidence }}): {{ .reason }}
→ {{ .action }}`, map[string]any{
		"id":         decision.DecisionID,
		"type":       decision.Candidate.Type,
		"confidence": decision.Candidate.Confidence,
		"reason":     decision.Candidate.Reason,
		"action":     actionText(decision, lang),
	})
	r.reply(msg, chat, text)
	return nil
}

func (r *Reactor) rulesCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", i18n.Get("Chat rules", lang))
	for _, vtype := range sortedKeys(r.rules.Severities) {
		rule := r.rules.Severities[vtype]
		fmt.Fprintf(&b, "• %s (%d/5) → %s\n", i18n.Get(rule.Description, lang), rule.Severity, rule.Action)
	}
	r.reply(msg, chat, b.String())
	return nil
}

func (r *Reactor) repCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	target := user
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		target = msg.ReplyToMessage.From
	}
	rep, err := r.coordinator.Reputation().Get(ctx, target.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get reputation")
	}
	text := tool.ExecTemplate(`{{ .name }}: {{ .points }} ({{ .rank }})`, map[string]any{
		"name":   displayName(target),
		"points": rep.Total,
		"rank":   i18n.Get(rep.Rank, lang),
	})
	if len(rep.Badges) > 0 {
		text += "\n" + strings.Join(rep.Badges, " ")
	}
	r.reply(msg, chat, text)
	return nil
}

func (r *Reactor) topCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.s.GetLanguage(ctx, chat.ID, user)
	top, err := r.coordinator.Reputation().Leaderboard(ctx, 10)
	if err != nil {
		return errors.WithMessage(err, "cant get leaderboard")
	}
	if len(top) == 0 {
		r.reply(msg, chat, i18n.Get("No reputation earned yet", lang))
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", i18n.Get("Community leaderboard", lang))
	for i, entry := range top {
		fmt.Fprintf(&b, "%d. %d — %d (%s)\n", i+1, entry.UserID, entry.Total, i18n.Get(entry.Rank, lang))
	}
	r.reply(msg, chat, b.String())
	return nil
}

func (r *Reactor) deleteCommandMessage(ctx context.Context, chatID int64, messageID int) error {
	return bot.DeleteChatMessage(ctx, r.s.GetBot(), chatID, messageID)
}

func displayName(user *api.User) string {
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
