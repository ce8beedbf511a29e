package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sunopiusme/rlguardbot/internal/bot"
	"github.com/sunopiusme/rlguardbot/internal/config"
	"github.com/sunopiusme/rlguardbot/internal/db/sqlite"
	chat "github.com/sunopiusme/rlguardbot/internal/handlers/chat"
	guard "github.com/sunopiusme/rlguardbot/internal/handlers/moderation"
	"github.com/sunopiusme/rlguardbot/internal/infra"
	"github.com/sunopiusme/rlguardbot/internal/lifecycle"
	"github.com/sunopiusme/rlguardbot/internal/moderation"
	"github.com/sunopiusme/rlguardbot/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.RGFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := observability.Init(); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	infra.GoRecoverable(5, "main", func() {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		rules, err := config.LoadRules(cfg.Moderation.RulesPath)
		if err != nil {
			log.WithError(err).Fatalln("cant load rule set")
		}

		dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(cfg.DotPath), "guard.db")
		if err != nil {
			log.WithError(err).Fatalln("cant initialize storage")
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.WithError(err).Errorln("cant close storage")
			}
		}()

		botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
		if err != nil {
			log.WithError(err).Errorln("cant initialize bot api")
			time.Sleep(1 * time.Second)
			log.Fatalln("exiting")
		}
		if log.Level(cfg.LogLevel) == log.TraceLevel {
			botAPI.Debug = true
		}
		defer botAPI.StopReceivingUpdates()

		service := bot.NewService(botAPI, dbClient, cfg)

		classifier, err := moderation.NewClassifier(rules, cfg.Moderation)
		if err != nil {
			log.WithError(err).Fatalln("cant build classifier")
		}
		store := moderation.NewStore(dbClient)
		engine := moderation.NewEngine(cfg.Moderation, rules, store)
		queue := moderation.NewReportQueue(dbClient, engine, classifier, cfg.Moderation.ReportDedupWindow)
		flood := moderation.NewFloodDetector(cfg.Moderation.FloodWindow, cfg.Moderation.FloodThreshold)
		reputation := moderation.NewReputationService(dbClient)
		executor := guard.NewActionExecutor(service)

		coordinator, err := moderation.NewCoordinator(
			classifier, flood, engine, store, queue, executor, reputation, dbClient,
		)
		if err != nil {
			log.WithError(err).Fatalln("cant build coordinator")
		}

		bot.RegisterUpdateHandler("reactor", chat.NewReactor(service, coordinator, rules))
		updateProcessor := bot.NewUpdateProcessor(service, []string{"reactor"})

		runtime := lifecycle.NewRuntime()
		runtime.Register("flood-detector", flood)
		runtime.Register("metrics-server", observability.NewMetricsServer(cfg.MetricsAddr))
		runtime.Register("report-digest", chat.NewReportDigest(service, dbClient, cfg.Moderation.ReportDigestInterval))
		if err := runtime.Start(ctx); err != nil {
			log.WithError(err).Fatalln("cant start components")
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := runtime.Stop(stopCtx); err != nil {
				log.WithError(err).Errorln("cant stop components")
			}
		}()

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updates := botAPI.GetUpdatesChan(updateConfig)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case update, ok := <-updates:
					if !ok {
						return nil
					}
					if err := updateProcessor.Process(groupCtx, &update); err != nil {
						log.WithError(err).Errorln("cant process update")
					}
				}
			}
		})

		if err := group.Wait(); err != nil && err != context.Canceled {
			log.WithError(err).Errorln("no more updates")
		}
	})
}
