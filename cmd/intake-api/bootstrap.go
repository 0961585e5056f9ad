package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/TrackIntake/config"
	intakeapi "github.com/BearBump/TrackIntake/internal/api/intake_api"
	"github.com/BearBump/TrackIntake/internal/station"
)

type intakeAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   intakeAPIOpts
	st     *station.Station
	api    *intakeapi.IntakeAPI
}

func mustBootstrapIntakeAPI() *intakeAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Intake.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := station.Build(ctx, cfg)
	if err != nil {
		cancel()
		panic(fmt.Sprintf("ошибка сборки станции, %v", err))
	}

	api := intakeapi.New(st.Intake, st.Export)
	// relay имеет смысл только когда этот процесс сам ходит на SFTP
	if cfg.Intake.RelayEnabled && st.SFTP != nil {
		api.WithRelay(st.SFTP)
	}

	return &intakeAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: intakeAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		st:  st,
		api: api,
	}
}

func (a *intakeAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.st != nil {
		a.st.Close()
	}
}

func (a *intakeAPIApp) Run() error {
	return runIntakeAPI(a.ctx, a.opts, a.api, a.st.Export, a.st.Ping)
}
