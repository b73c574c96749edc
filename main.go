package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	var configName = flag.String("config", "", "Predefined configuration name (e.g., 'small_grid', 'fault_storm')")
	var configFile = flag.String("config-file", "", "JSON configuration file; overrides -config")
	var realtime = flag.Bool("realtime", false, "Drive tiles from wall-clock timers instead of virtual time")
	var journalPath = flag.String("journal", "", "SQLite file recording link, circuit and window events")
	var logLevel = flag.String("log-level", "", "Log level: off, err, warning, info, debug, trace")
	var jsonOut = flag.Bool("json", false, "Print statistics as JSON")
	var list = flag.Bool("list", false, "List predefined configurations and exit")
	flag.Parse()

	if *list {
		for _, preset := range GetPredefinedConfigs() {
			fmt.Printf("%-14s %s\n", preset.Name, preset.Description)
		}
		return
	}

	cfg, err := selectConfig(*configName, *configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *realtime {
		cfg.Realtime = true
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := ValidateConfig(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level, _ := ParseLogLevel(cfg.LogLevel)
	SetLogger(NewLogger(os.Stderr, level))

	if err := run(cfg, *jsonOut); err != nil {
		GetLogger().Err().Err(err).Log("simulation failed")
		os.Exit(1)
	}
}

func selectConfig(name, file string) (*Config, error) {
	if file != "" {
		return LoadConfigFile(file)
	}
	if name == "" {
		name = GetPredefinedConfigs()[0].Name
	}
	cfg := GetConfigByName(name)
	if cfg == nil {
		return nil, fmt.Errorf("configuration %q not found (see -list)", name)
	}
	cfg.Name = name
	return cfg, nil
}

func run(cfg *Config, jsonOut bool) (err error) {
	sim, err := NewSimulator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sim.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cfg.Realtime {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := sim.RunRealtime(ctx); err != nil {
			return err
		}
	} else if err := sim.Run(); err != nil {
		return err
	}

	stats := sim.CollectStats()
	if jsonOut {
		return WriteStatsJSON(os.Stdout, stats)
	}
	PrintStats(os.Stdout, stats)
	return nil
}
