package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/apepenkov/yalog"

	"launchman_backend/api"
	"launchman_backend/config"
	"launchman_backend/launcher"
)

func newRootLogger() *yalog.Logger {
	return yalog.NewLogger(
		"launchman",
		yalog.WithPrintTime("2006-01-02 15:04:05"),
		yalog.WithPrintCaller(20),
		yalog.WithPrintLevel(),
		yalog.WithColorEnabled(),
		yalog.WithPrintTreeName(1, true),
		yalog.WithVerboseLevel(yalog.VerboseLevelDebug),
		yalog.WithAnotherColor(yalog.VerboseLevelDebug, yalog.ColorCyan),
	)
}

func loadConfig(path string) (*config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg config.Config
	if err = json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	serveAddr := flag.String("serve", "127.0.0.1:54580", "Address to serve the HTTP API on")
	allowOrigin := flag.String("allow-origin", "*", "Allow origin for CORS")
	flag.Parse()

	logger := newRootLogger()
	logger.Debugln("Starting launchman")

	cfg, err := loadConfig("config.json")
	if err != nil {
		logger.Errorln("Could not load config.json:", err)
		panic(err)
	}

	manager, err := launcher.NewManager(*cfg, logger)
	if err != nil {
		logger.Errorln("Could not start the launcher manager:", err)
		panic(err)
	}
	defer manager.Close()

	httpServ := api.NewHttpServer(manager, *serveAddr, *allowOrigin)
	httpServ.Logger.SetVerboseLevel(yalog.VerboseLevelInfo)

	if err = httpServ.ListenAndServe(); err != nil {
		logger.Errorln("HTTP server failed:", err)
		panic(err)
	}
}
