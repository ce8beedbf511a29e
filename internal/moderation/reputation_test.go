package moderation

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	guarderrors "github.com/sunopiusme/rlguardbot/internal/errors"
)

func TestReputationViolationDebits(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := NewReputationService(store)
	ctx := context.Background()

	cases := []struct {
		action ActionKind
		want   int
	}{
		{ActionWarn, -5},
		{ActionMute, -20},
		{ActionBan, -70},
	}
	for _, tc := range cases {
		total, err := svc.ApplyViolation(ctx, 42, tc.action)
		if err != nil {
			t.Fatalf("ApplyViolation(%s): %v", tc.action, err)
		}
		if total != tc.want {
			t.Fatalf("total after %s = %d, want %d", tc.action, total, tc.want)
		}
	}
}

func TestReputationAwardsAndRanks(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := NewReputationService(store)
	ctx := context.Background()

	if _, err := svc.Award(ctx, 42, "made_up_event"); !errors.Is(err, guarderrors.ErrValidation) {
		t.Fatalf("unknown event error = %v, want ErrValidation", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := svc.Award(ctx, 42, RepEventDefend); err != nil {
			t.Fatalf("Award defend: %v", err)
		}
	}
	summary, err := svc.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if summary.Total != 50 {
		t.Fatalf("total = %d, want 50", summary.Total)
	}
	if summary.Rank != "Trusted" {
		t.Fatalf("rank = %q, want Trusted", summary.Rank)
	}

	hasBadge := func(want string) bool {
		for _, badge := range summary.Badges {
			if badge == want {
				return true
			}
		}
		return false
	}
	for _, want := range []string{"🛡️ Defender", "⚔️ Champion", "⭐ Trusted"} {
		if !hasBadge(want) {
			t.Fatalf("badge %q missing, have %v", want, summary.Badges)
		}
	}
	if hasBadge("👑 Legend") {
		t.Fatalf("Legend badge awarded at 50 points: %v", summary.Badges)
	}
}

func TestReputationUnknownUserIsNewcomer(t *testing.T) {
	t.Parallel()
	svc := NewReputationService(newMemStore())

	summary, err := svc.Get(context.Background(), 777)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if summary.Total != 0 || summary.Rank != "Newcomer" || len(summary.Badges) != 0 {
		t.Fatalf("fresh user summary = %+v", summary)
	}
}

func TestReputationLeaderboard(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := NewReputationService(store)
	ctx := context.Background()

	for userID, n := range map[int64]int{1: 1, 2: 3, 3: 5} {
		for i := 0; i < n; i++ {
			if _, err := svc.Award(ctx, userID, RepEventHelpful); err != nil {
				t.Fatalf("Award: %v", err)
			}
		}
	}

	top, err := svc.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("leaderboard size = %d, want 2", len(top))
	}
	if top[0].UserID != 3 || top[1].UserID != 2 {
		t.Fatalf("leaderboard order = [%d %d], want [3 2]", top[0].UserID, top[1].UserID)
	}
}
