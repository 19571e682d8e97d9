package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/config"
	"github.com/ledgermatch/ledgermatch/internal/events"
	"github.com/ledgermatch/ledgermatch/internal/ledger"
	"github.com/ledgermatch/ledgermatch/internal/matcher"
	"github.com/ledgermatch/ledgermatch/internal/receipt"
	"github.com/ledgermatch/ledgermatch/internal/service"
	"github.com/ledgermatch/ledgermatch/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/ledgermatch/ledgermatch.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initPoster builds the ledger client, or a dry-run recorder when
// --dry-run is set.
func initPoster(ctx context.Context, dryRun bool) (service.LedgerPoster, error) {
	if dryRun {
		return ledger.NewRecorder(), nil
	}

	cfg, err := ledger.ConfigFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return ledger.NewClient(ctx, cfg), nil
}

// initMatcher wires the full matching pipeline.
func initMatcher(store service.Storage, poster service.LedgerPoster) *matcher.Matcher {
	policy := matcher.PolicyFromConfig(viper.GetViper())
	validator := receipt.FromConfig(store, viper.GetViper())
	calendar := events.FromConfig(viper.GetViper())

	var venueEvents service.VenueEvents
	if calendar != nil {
		venueEvents = calendar
	}
	return matcher.New(store, poster, venueEvents, validator, policy)
}
