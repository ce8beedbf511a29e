package moderation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/sunopiusme/rlguardbot/internal/db"
	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
)

// Reputation points per event.
const (
	repDefend   = 5
	repHelpful  = 3
	repBug      = 2
	repPositive = 1

	repWarn = -5
	repMute = -15
	repBan  = -50
)

const (
	RepEventDefend    = "defend"
	RepEventHelpful   = "helpful"
	RepEventBugReport = "bug_report"
	RepEventPositive  = "positive"
	RepEventViolation = "violation"
)

var repAwards = map[string]struct {
	Points int
	Reason string
}{
	RepEventDefend:    {repDefend, "Defended the community 🛡️"},
	RepEventHelpful:   {repHelpful, "Helpful answer 💡"},
	RepEventBugReport: {repBug, "Bug report 🐛"},
	RepEventPositive:  {repPositive, "Positive feedback ❤️"},
}

type reputationStore interface {
	AddReputationEvent(ctx context.Context, event *db.ReputationEvent) error
	UpsertReputation(ctx context.Context, rep *db.Reputation) error
	GetReputation(ctx context.Context, userID int64) (*db.Reputation, error)
	CountReputationEvents(ctx context.Context, userID int64, eventType string) (int, error)
	GetTopReputation(ctx context.Context, limit int) ([]*db.Reputation, error)
}

// ReputationService keeps community standing: minus points on enforcement,
// plus points for helpful behavior, with badges and ranks derived from the
// totals.
type ReputationService struct {
	db reputationStore
}

func NewReputationService(db reputationStore) *ReputationService {
	return &ReputationService{db: db}
}

type RepSummary struct {
	UserID int64
	Total  int
	Rank   string
	Badges []string
}

// ApplyViolation debits the user for an enforced action and returns the new
// total.
func (r *ReputationService) ApplyViolation(ctx context.Context, userID int64, action ActionKind) (int, error) {
	points := repWarn
	switch action {
	case ActionMute:
		points = repMute
	case ActionBan:
		points = repBan
	}
	return r.apply(ctx, userID, RepEventViolation, points, "Violation: "+string(action))
}

// Award credits the user for a positive community event.
func (r *ReputationService) Award(ctx context.Context, userID int64, eventType string) (int, error) {
	award, ok := repAwards[eventType]
	if !ok {
		return 0, errors.Wrapf(guarderrors.ErrValidation, "unknown reputation event %q", eventType)
	}
	return r.apply(ctx, userID, eventType, award.Points, award.Reason)
}

func (r *ReputationService) apply(ctx context.Context, userID int64, eventType string, points int, reason string) (int, error) {
	if err := r.db.AddReputationEvent(ctx, &db.ReputationEvent{
		UserID:    userID,
		EventType: eventType,
		Points:    points,
		Reason:    reason,
		CreatedAt: time.Now(),
	}); err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}

	rep, err := r.db.GetReputation(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	if rep == nil {
		rep = &db.Reputation{UserID: userID, Badges: "[]"}
	}
	rep.Total += points
	rep.UpdatedAt = time.Now()

	badges := decodeBadges(rep.Badges)
	badges, err = r.refreshBadges(ctx, userID, rep.Total, badges)
	if err != nil {
		return 0, err
	}
	rep.Badges = encodeBadges(badges)

	if err := r.db.UpsertReputation(ctx, rep); err != nil {
		return 0, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	return rep.Total, nil
}

func (r *ReputationService) refreshBadges(ctx context.Context, userID int64, total int, badges []string) ([]string, error) {
	defends, err := r.db.CountReputationEvents(ctx, userID, RepEventDefend)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	helps, err := r.db.CountReputationEvents(ctx, userID, RepEventHelpful)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}

	award := func(badge string, earned bool) {
		if !earned {
			return
		}
		for _, b := range badges {
			if b == badge {
				return
			}
		}
		badges = append(badges, badge)
	}
	award("🛡️ Defender", defends >= 3)
	award("⚔️ Champion", defends >= 10)
	award("⭐ Trusted", total >= 50)
	award("👑 Legend", total >= 100)
	award("💡 Helper", helps >= 5)
	return badges, nil
}

func (r *ReputationService) Get(ctx context.Context, userID int64) (*RepSummary, error) {
	rep, err := r.db.GetReputation(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	summary := &RepSummary{UserID: userID}
	if rep != nil {
		summary.Total = rep.Total
		summary.Badges = decodeBadges(rep.Badges)
	}
	summary.Rank = rankFor(summary.Total)
	return summary, nil
}

func (r *ReputationService) Leaderboard(ctx context.Context, limit int) ([]*RepSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	reps, err := r.db.GetTopReputation(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(guarderrors.ErrPersistence, err.Error())
	}
	summaries := make([]*RepSummary, 0, len(reps))
	for _, rep := range reps {
		summaries = append(summaries, &RepSummary{
			UserID: rep.UserID,
			Total:  rep.Total,
			Rank:   rankFor(rep.Total),
			Badges: decodeBadges(rep.Badges),
		})
	}
	return summaries, nil
}

func rankFor(total int) string {
	switch {
	case total < 0:
		return "⚠️ Suspicious"
	case total < 10:
		return "Newcomer"
	case total < 30:
		return "Member"
	case total < 50:
		return "Regular"
	case total < 100:
		return "Trusted"
	default:
		return "Legend"
	}
}

func decodeBadges(raw string) []string {
	var badges []string
	if raw == "" {
		return badges
	}
	_ = json.Unmarshal([]byte(raw), &badges)
	return badges
}

func encodeBadges(badges []string) string {
	if badges == nil {
		badges = []string{}
	}
	raw, _ := json.Marshal(badges)
	return string(raw)
}
