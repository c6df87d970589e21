package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/service"
	"github.com/Veraticus/trial-balance-export/internal/storage"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Backend(), err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// initZoho builds a Zoho client from configuration.
func initZoho() (*zoho.Client, *zoho.Config, error) {
	cfg, err := config.LoadZohoConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := zoho.NewClient(*cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zoho client: %w", err)
	}
	return client, cfg, nil
}

// regionArg parses a region given on the command line.
func regionArg(arg string) (model.Region, error) {
	region, err := model.ParseRegion(arg)
	if err != nil {
		return "", fmt.Errorf("invalid region: %w", err)
	}
	return region, nil
}

// parseOrgFlags turns REGION=ORG_ID pairs into a map. A region may appear once.
func parseOrgFlags(values []string) (map[model.Region]string, error) {
	orgs := make(map[model.Region]string, len(values))
	for _, v := range values {
		key, org, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(org) == "" {
			return nil, fmt.Errorf("invalid --org %q: want REGION=ORG_ID", v)
		}
		region, err := regionArg(key)
		if err != nil {
			return nil, err
		}
		if _, dup := orgs[region]; dup {
			return nil, fmt.Errorf("region %s given more than once", region)
		}
		orgs[region] = strings.TrimSpace(org)
	}
	return orgs, nil
}
