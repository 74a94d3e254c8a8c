package main

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/coursedex/internal/blob"
	"github.com/kailas-cloud/coursedex/internal/config"
	"github.com/kailas-cloud/coursedex/internal/db"
	dbDynamo "github.com/kailas-cloud/coursedex/internal/db/dynamo"
	dbMemory "github.com/kailas-cloud/coursedex/internal/db/memory"
	dbPostgres "github.com/kailas-cloud/coursedex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/coursedex/internal/db/redis"
	dbValkey "github.com/kailas-cloud/coursedex/internal/db/valkey"
)

// migrator is implemented by drivers that own a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

// buildStore creates the database store for the configured driver.
func buildStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverValkey:
		return dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	case config.DriverRedis:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	case config.DriverPostgres:
		return dbPostgres.NewStore(dbPostgres.Config{DSN: cfg.DSN})
	case config.DriverDynamo:
		return dbDynamo.NewStore(ctx, dbDynamo.Config{
			Table:    cfg.Table,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case config.DriverMemory:
		return dbMemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildSource creates the blob source holding the catalog snapshot.
func buildSource(ctx context.Context, cfg config.CatalogConfig) (blob.Source, error) {
	switch cfg.Source {
	case config.SourceLocal:
		return blob.NewLocal(cfg.Path), nil
	case config.SourceS3:
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	case config.SourceMinIO:
		return blob.NewMinIO(blob.MinIOConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
	case config.SourceMemory:
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
	}
}
