package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/sitegrade/sitegrade/internal/app"
	"github.com/sitegrade/sitegrade/internal/config"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiGreen = "\033[32m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
)

func main() {
	printStartupBanner()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "run mode: all (default), api, worker")
	flag.Parse()

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("Service exited with error: %v", err)
	}
}

func printStartupBanner() {
	fmt.Println(ansiCyan + "███████╗██╗████████╗███████╗ ██████╗ ██████╗  █████╗ ██████╗ ███████╗" + ansiReset)
	fmt.Println(ansiCyan + "██╔════╝██║╚══██╔══╝██╔════╝██╔════╝ ██╔══██╗██╔══██╗██╔══██╗██╔════╝" + ansiReset)
	fmt.Println(ansiCyan + "███████╗██║   ██║   █████╗  ██║  ███╗██████╔╝███████║██║  ██║█████╗  " + ansiReset)
	fmt.Println(ansiCyan + "╚════██║██║   ██║   ██╔══╝  ██║   ██║██╔══██╗██╔══██║██║  ██║██╔══╝  " + ansiReset)
	fmt.Println(ansiCyan + "███████║██║   ██║   ███████╗╚██████╔╝██║  ██║██║  ██║██████╔╝███████╗" + ansiReset)
	fmt.Println(ansiCyan + "╚══════╝╚═╝   ╚═╝   ╚══════╝ ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝" + ansiReset)
	fmt.Println(ansiGreen + ansiBold + "SiteGrade · landing page audit & unlock engine" + ansiReset)
	fmt.Println(ansiBlue + "• API:  https://github.com/sitegrade/sitegrade" + ansiReset)
	fmt.Println(ansiBlue + "• Docs: https://sitegrade.in/docs" + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}
