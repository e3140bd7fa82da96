// The ms2bot command is the entrypoint for running a single headless game
// client against a MapleStory2-style login/game server pair. It follows
// archon's cmd/server/main.go shape: stdlib flag parsing, a banner print,
// and a signal-driven context cancellation wrapped around one top-level
// orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/core"
	"github.com/kestrelnet/ms2bot/internal/gameflow"
	"github.com/kestrelnet/ms2bot/internal/loginflow"
)

var (
	configFlag     = flag.String("config", "", "Path to a YAML config file overlaying the built-in defaults")
	npcFlag        = flag.Int("npc", 0, "If set, spawn this NPC ID after entering the field")
	skillFlag      = flag.Int("skill", 0, "If set, cast this skill ID after entering the field")
	skillLevelFlag = flag.Int("skill-level", 1, "Skill level used with -skill")
)

func main() {
	flag.Parse()

	fmt.Println("ms2bot headless client\n" +
		"=======================")

	host, port, username, password := "127.0.0.1", 20001, "testbot", "testbot"
	args := flag.Args()
	if len(args) > 0 {
		host = args[0]
	}
	if len(args) > 1 {
		if p, err := parsePort(args[1]); err == nil {
			port = p
		} else {
			fmt.Println("invalid port:", args[1])
			os.Exit(1)
		}
	}
	if len(args) > 2 {
		username = args[2]
	}
	if len(args) > 3 {
		password = args[3]
	}

	cfg, err := core.LoadConfig(*configFlag)
	if err != nil {
		fmt.Println("error loading configuration:", err)
		os.Exit(1)
	}

	logger, err := core.NewLogger(cfg)
	if err != nil {
		fmt.Println("error initializing logger:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("shutting down")
		cancel()
	}()

	runner := &Runner{
		logger:     logger,
		cfg:        cfg,
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		npcID:      *npcFlag,
		skillID:    *skillFlag,
		skillLevel: int16(*skillLevelFlag),
	}

	if err := runner.Run(ctx); err != nil {
		logger.WithError(err).Error("run failed")
		os.Exit(1)
	}
	fmt.Println("shut down")
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

// Runner owns the login and game flows for one client run: the client-side
// analogue of archon's internal.Controller.
type Runner struct {
	logger *logrus.Logger
	cfg    *core.Config

	host, username, password string
	port                     int

	npcID      int
	skillID    int
	skillLevel int16
}

func (r *Runner) Run(ctx context.Context) error {
	login := loginflow.New(r.logger, r.cfg)
	defer login.Session().Dispose()

	if err := login.Connect(ctx, r.host, r.port); err != nil {
		return err
	}

	result, err := login.Login(ctx, r.username, r.password)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("login failed: code %d: %s", result.ErrorCode, result.ErrorMessage)
	}
	if len(result.Characters) == 0 {
		return fmt.Errorf("account has no characters")
	}
	character := result.Characters[0]

	handle, err := login.SelectCharacter(ctx, character.CharacterID)
	if err != nil {
		return err
	}

	game := gameflow.New(r.logger, r.cfg, result.AccountID, handle.Token, login.MachineID())
	defer game.Session().Dispose()

	if err := game.Connect(ctx, handle.Address, handle.Port); err != nil {
		return err
	}
	r.logger.Info("entered field, map " + fmt.Sprint(game.Field().MapID))

	if r.npcID != 0 {
		npc, err := game.SpawnNPC(r.npcID)
		if err != nil {
			return err
		}
		if npc != nil && r.skillID != 0 {
			skillUID, err := game.CastSkill(int32(r.skillID), r.skillLevel)
			if err != nil {
				return err
			}
			if err := game.AttackTarget(skillUID, []int32{npc.ObjectID}, 1); err != nil {
				return err
			}
		}
	}

	return game.StayAlive(ctx)
}
