package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harpua555/OpenFilamentSensor/common/config"
	"github.com/harpua555/OpenFilamentSensor/common/file"
	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/harpua555/OpenFilamentSensor/common/utils/sys"
)

// overrides collects repeated -set key=value flags.
type overrides []string

func (o *overrides) String() string {
	return strings.Join(*o, ",")
}

func (o *overrides) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	configFile := flag.String("config", config.DefaultSettingsFile, "settings file (.json, .yaml or .toml)")
	logFile := flag.String("log", "", "log file, rotated (default: stdout only)")
	color := flag.Bool("color", false, "colour log levels on stdout")
	save := flag.Bool("save", false, "write the effective settings back to -config and exit")
	var sets overrides
	flag.Var(&sets, "set", "override a setting, e.g. -set detection_mode=1 (repeatable)")
	flag.Parse()

	settings, err := config.Load(*configFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load settings: %v\n", err)
		os.Exit(1)
	}
	missing := err != nil
	for _, s := range sets {
		if err := settings.Apply(s); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if *logFile != "" {
		settings.LogFile = file.ExpandPath(*logFile)
	}

	logger.InitLogger(logger.Options{
		Verbosity:    logger.Verbosity(settings.LogLevel),
		LogFile:      settings.LogFile,
		SupportColor: *color,
		MaxSizeMB:    10,
		MaxBackups:   3,
		MaxAgeDays:   14,
	})
	defer logger.Sync()
	if missing {
		logger.Warnf("settings file %s not found, using defaults", *configFile)
	}
	if err := settings.Validate(); err != nil {
		logger.Fatalf("invalid settings: %v", err)
	}
	if *save {
		if err := settings.Save(*configFile); err != nil {
			logger.Fatalf("save settings: %v", err)
		}
		logger.Infof("settings written to %s", *configFile)
		return
	}

	logger.Debugf("main thread %d running", sys.GetGID())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, settings)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer d.Close()
	if err := d.Run(ctx); err != nil {
		logger.Errorf("stopped: %v", err)
		return
	}
	logger.Info("stopped")
}
