package moderation

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sunopiusme/rlguardbot/internal/config"
	"github.com/sunopiusme/rlguardbot/internal/db"
)

// Engine turns a violation candidate plus the user's history into an
// enforcement decision. Every acted-upon decision commits exactly one
// ViolationRecord before the outcome is returned.
type Engine struct {
	policy config.Moderation
	rules  *config.RuleSet
	store  *Store
}

func NewEngine(policy config.Moderation, rules *config.RuleSet, store *Store) *Engine {
	return &Engine{policy: policy, rules: rules, store: store}
}

type decideOptions struct {
	confirmed bool
	forced    ActionKind
}

type DecideOption func(*decideOptions)

// Confirmed marks the candidate as human-confirmed (approved report or admin
// override), bypassing the auto-action confidence gate.
func Confirmed() DecideOption {
	return func(o *decideOptions) { o.confirmed = true }
}

// Forced pins the enforcement action regardless of the severity table.
func Forced(kind ActionKind) DecideOption {
	return func(o *decideOptions) { o.forced = kind }
}

type resolution struct {
	kind          ActionKind
	deleteMessage bool
	escalated     bool
	review        bool
	terminal      bool
}

// resolveAction is the pure decision core: severity-table default, the
// warn-before-ban repetition rule, the confidence gate and the terminal
// banned state, with ties always broken toward the harsher action.
func resolveAction(cand Candidate, priorWarns int, banned bool, policy config.Moderation, rules *config.RuleSet, opts decideOptions) resolution {
	// Banned is terminal for the automatic path only; an explicit admin
	// override still acts (re-ban permanently after a temp ban, or mute).
	if banned && opts.forced == "" {
		return resolution{kind: ActionNone, terminal: true}
	}

	res := resolution{}
	if opts.forced != "" {
		res.kind = opts.forced
	} else {
		rule := rules.Severities[cand.Type]
		switch rule.Action {
		case "ban":
			res.kind = ActionBan
		case "mute":
			res.kind = ActionMute
		case "delete", "warn":
			res.kind = ActionWarn
		default:
			res.kind = ActionNone
		}
		res.deleteMessage = rule.DeleteMessage
	}

	if priorWarns >= policy.WarnBeforeBan {
		escalated := Harsher(res.kind, ActionBan)
		if escalated != res.kind {
			res.kind = escalated
			res.escalated = true
		}
	}

	if !opts.confirmed && cand.Confidence < policy.AutoActionThreshold {
		return resolution{review: true}
	}
	return res
}

// Decide evaluates the candidate against the user's history and commits the
// result. A Review outcome commits nothing here; the record is written when
// the synthetic report is later approved, so each confirmed violation yields
// exactly one record.
func (e *Engine) Decide(ctx context.Context, chatID, userID int64, messageID int, source string, cand Candidate, options ...DecideOption) (*Outcome, error) {
	opts := decideOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	since := time.Time{}
	if e.policy.DecayWindow > 0 {
		since = time.Now().Add(-e.policy.DecayWindow)
	}
	priorWarns, err := e.store.CountActionsSince(ctx, chatID, userID, []ActionKind{ActionWarn}, since)
	if err != nil {
		return nil, err
	}
	// Banned is terminal regardless of decay.
	bans, err := e.store.CountActionsSince(ctx, chatID, userID, []ActionKind{ActionBan}, time.Time{})
	if err != nil {
		return nil, err
	}

	res := resolveAction(cand, priorWarns, bans > 0, e.policy, e.rules, opts)
	if res.review {
		return &Outcome{Review: &cand}, nil
	}

	outcome := &Outcome{
		DecisionID: uuid.New(),
		Escalated:  res.escalated,
	}

	var duration time.Duration
	switch res.kind {
	case ActionMute:
		duration = e.policy.MuteDuration
	case ActionBan:
		duration = e.policy.BanDuration
	}

	enforced := db.EnforcedPending
	if res.kind == ActionNone && !res.deleteMessage {
		enforced = db.EnforcedNone
	}
	record := &db.ViolationRecord{
		ChatID:     chatID,
		UserID:     userID,
		Type:       cand.Type,
		Severity:   cand.Severity,
		Confidence: cand.Confidence,
		Source:     source,
		Action:     string(res.kind),
		DurationNS: int64(duration),
		Enforced:   enforced,
		Evidence:   cand.Evidence,
		DecisionID: outcome.DecisionID,
		CreatedAt:  time.Now(),
	}
	recordID, err := e.store.Append(ctx, record)
	if err != nil {
		// Fail closed: no record, no action.
		return nil, err
	}
	outcome.RecordID = recordID

	if res.kind != ActionNone || res.deleteMessage {
		outcome.Action = &EnforcementAction{
			Kind:          res.kind,
			ChatID:        chatID,
			TargetUserID:  userID,
			MessageID:     messageID,
			Duration:      duration,
			DeleteMessage: res.deleteMessage,
			Reason:        cand.Reason,
		}
	}

	log.WithFields(log.Fields{
		"decision_id": outcome.DecisionID,
		"chat_id":     chatID,
		"user_id":     userID,
		"type":        cand.Type,
		"action":      res.kind,
		"escalated":   res.escalated,
	}).Debug("decision committed")

	return outcome, nil
}
