package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"

	"github.com/sunopiusme/rlguardbot/internal/config"
	"github.com/sunopiusme/rlguardbot/internal/db"
	"github.com/sunopiusme/rlguardbot/internal/i18n"
)

type ServiceBot interface {
	GetBot() *api.BotAPI
}

type ServiceDB interface {
	GetDB() db.Client
}

// Service is what handlers get to talk to the platform and storage.
type Service interface {
	ServiceBot
	ServiceDB
	GetLanguage(ctx context.Context, chatID int64, user *api.User) string
	IsAdmin(userID int64) bool
}

// Handler is an update handler in the processing chain. Returning proceed
// false stops the chain for the update.
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

type service struct {
	bot    *api.BotAPI
	db     db.Client
	cfg    config.Config
	admins map[int64]bool
}

func NewService(bot *api.BotAPI, dbClient db.Client, cfg config.Config) *service {
	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = true
	}
	return &service{
		bot:    bot,
		db:     dbClient,
		cfg:    cfg,
		admins: admins,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetLanguage(ctx context.Context, chatID int64, user *api.User) string {
	if user != nil && tool.In(user.LanguageCode, i18n.GetLanguagesList()...) {
		return user.LanguageCode
	}
	return s.cfg.DefaultLanguage
}

// IsAdmin checks the configured operator allowlist, not chat admin rights.
func (s *service) IsAdmin(userID int64) bool {
	return s.admins[userID]
}
