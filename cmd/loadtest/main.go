package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/loadtest"
	"slotbook/internal/logging"
	"slotbook/internal/repository"
	"slotbook/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", "configs/config.yaml", "path to the service config")
		scenariosPath = flag.String("scenarios", "", "optional YAML scenario file; defaults to the built-in matrix")
		storeKind     = flag.String("store", "memory", "backing store to exercise: memory or sqlite")
		jsonOut       = flag.Bool("json", false, "emit per-scenario JSON reports instead of text")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "loadtest").Logger()

	store, cleanup, err := openStore(*storeKind, cfg, &logger)
	if err != nil {
		return err
	}
	defer cleanup()

	scenarios, err := resolveScenarios(*scenariosPath)
	if err != nil {
		return err
	}

	svc := service.NewBookingService(store, nil, nil, cfg.Booking.CancelWindowHours, cfg.Booking.DefaultCapacity, &logger)
	runner := loadtest.NewRunner(store, svc, &logger)

	results, err := runner.RunAll(context.Background(), scenarios)
	if err != nil {
		return fmt.Errorf("run scenarios: %w", err)
	}

	if err := report(results, *jsonOut); err != nil {
		return err
	}

	for _, r := range results {
		if !r.Validation.Passed {
			return fmt.Errorf("%d of %d scenarios failed validation", failed(results), len(results))
		}
	}
	return nil
}

func openStore(kind string, cfg *config.Config, logger *zerolog.Logger) (domain.Store, func(), error) {
	switch kind {
	case "memory":
		return repository.NewMemoryStore(), func() {}, nil
	case "sqlite":
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init database: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory or sqlite)", kind)
	}
}

func resolveScenarios(path string) ([]loadtest.Scenario, error) {
	if path == "" {
		return loadtest.DefaultScenarios(), nil
	}
	scenarios, err := loadtest.LoadScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s defines no scenarios", path)
	}
	return scenarios, nil
}

func report(results []*loadtest.Result, asJSON bool) error {
	for _, r := range results {
		if asJSON {
			raw, err := r.JSON()
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(raw))
			continue
		}
		fmt.Fprintln(os.Stdout, r.Text())
	}
	fmt.Fprintln(os.Stdout, loadtest.Summary(results))
	return nil
}

func failed(results []*loadtest.Result) int {
	n := 0
	for _, r := range results {
		if !r.Validation.Passed {
			n++
		}
	}
	return n
}
