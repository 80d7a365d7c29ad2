package main

import (
	"fmt"

	"github.com/kirillm/rijin-bot/internal/engine"
	"github.com/kirillm/rijin-bot/internal/orchestrator"
	"github.com/kirillm/rijin-bot/internal/telegram"
)

// controller связывает бота команд с циклами инструментов
type controller struct {
	orch    *orchestrator.Orchestrator
	engines map[string]*engine.Engine
}

func newController(orch *orchestrator.Orchestrator, engines []*engine.Engine) *controller {
	c := &controller{orch: orch, engines: make(map[string]*engine.Engine, len(engines))}
	for _, e := range engines {
		c.engines[e.Instrument()] = e
	}
	return c
}

func (c *controller) Status() []engine.Status {
	return c.orch.Status()
}

func (c *controller) RequestRecheck(instrument string) error {
	e, ok := c.engines[instrument]
	if !ok {
		return fmt.Errorf("unknown instrument %s", instrument)
	}
	if _, halted := c.orch.Halted()[instrument]; halted {
		return fmt.Errorf("%s loop is halted", instrument)
	}
	e.RequestRecheck()
	return nil
}

// newCommandBot бот команд; по умолчанию команды принимаются только из чата уведомлений
func newCommandBot(a *app, ctrl telegram.Controller) *telegram.Bot {
	users := a.cfg.Telegram.AllowedUsers
	if len(users) == 0 {
		users = []int64{a.cfg.Telegram.ChatID}
	}
	router := telegram.NewRouter(telegram.NewAuthManager(users, a.cfg.Telegram.AdminIDs, 20))
	telegram.RegisterCommands(router, ctrl)
	return telegram.NewBot(a.tgAPI, router, a.logger.With("component", "telegram-bot"))
}
