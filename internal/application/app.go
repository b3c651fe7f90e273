// Package application wires configuration into a ready Pipeline.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/assetname"
	"thirdcoast.systems/sonicstream/internal/config"
	"thirdcoast.systems/sonicstream/internal/db"
	"thirdcoast.systems/sonicstream/internal/derive"
	"thirdcoast.systems/sonicstream/internal/localdb"
	"thirdcoast.systems/sonicstream/internal/namelock"
	"thirdcoast.systems/sonicstream/internal/objectstore"
	"thirdcoast.systems/sonicstream/internal/staging"
	"thirdcoast.systems/sonicstream/pkg/chords"
	"thirdcoast.systems/sonicstream/pkg/ffmpeg"
	"thirdcoast.systems/sonicstream/pkg/spleeter"
	"thirdcoast.systems/sonicstream/pkg/ytdlp"
)

const (
	localObjectsDir = "objects"
	localLocksDir   = "locks"
	localDBFile     = "sonicstream.db"
)

// App holds the wired pipeline and whatever it must release on shutdown.
type App struct {
	Config   *config.Config
	Pipeline *derive.Pipeline
	Staging  *staging.Manager
	Logger   *slog.Logger

	closers []func() error
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) { a.closers = append(a.closers, fn) }

type stores struct {
	objects objectstore.Store
	records asset.RecordStore
	groups  asset.GroupStore
	db      *db.DatabaseConnection
}

// New opens the configured backends and builds the pipeline. The caller owns
// the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.build(ctx); err != nil {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("application: close after failed start", "error", cerr)
		}
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}

	locks, err := a.openLocks(ctx, st)
	if err != nil {
		return err
	}

	a.Staging, err = staging.NewManager(cfg.Staging.StagingDir, logger)
	if err != nil {
		return fmt.Errorf("application: staging: %w", err)
	}

	style, err := assetname.ParseStyle(cfg.Naming.NamingStyle)
	if err != nil {
		return fmt.Errorf("application: %w", err)
	}

	runner := NewToolRunner(cfg.Tools, logger)

	fetcher := ytdlp.New(runner)
	fetcher.Path = cfg.Tools.YtdlpPath
	if cfg.Tools.YtdlpCookiesFile != "" {
		cookies, rerr := readCookies(cfg.Tools.YtdlpCookiesFile)
		if rerr != nil {
			return rerr
		}
		fetcher.Cookies = cookies
	}

	transcoder := ffmpeg.New(runner)
	transcoder.FFmpegPath = cfg.Tools.FFmpegPath
	transcoder.FFprobePath = cfg.Tools.FFprobePath

	separator := spleeter.New(runner, cfg.Tools.SpleeterModelPath)
	separator.Path = cfg.Tools.SpleeterPath

	extractor := chords.New(runner, cfg.Tools.ChordScript)
	extractor.Python = cfg.Tools.PythonPath

	a.Pipeline, err = derive.New(derive.Dependencies{
		Objects:    st.objects,
		Records:    st.records,
		Groups:     st.groups,
		Locks:      locks,
		Staging:    a.Staging,
		Fetcher:    fetcher,
		Separator:  separator,
		Transcoder: transcoder,
		Chords:     extractor,
		Logger:     logger,
	}, derive.Options{
		NamingStyle:       style,
		MaxNamingAttempts: cfg.Naming.NamingMaxAttempts,
		SignedURLTTL:      cfg.SignedURLTTL,
		UploadConcurrency: cfg.UploadConcurrency,
		RetryAttempts:     cfg.Retry.RetryAttempts,
		RetryBaseDelay:    cfg.Retry.RetryBaseDelay,
	})
	if err != nil {
		return err
	}

	logger.Info("application: pipeline ready",
		"storage_backend", cfg.StorageBackend,
		"lock_backend", cfg.EffectiveLockBackend(),
		"staging_dir", cfg.Staging.StagingDir)
	return nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := a.Config
	switch cfg.StorageBackend {
	case config.StorageLocal:
		objects, err := objectstore.NewFS(
			filepath.Join(cfg.Local.DataDir, localObjectsDir),
			cfg.Local.PublicBaseURL,
			[]byte(cfg.Local.SigningKey),
		)
		if err != nil {
			return nil, fmt.Errorf("application: local objects: %w", err)
		}
		store, err := localdb.Open(ctx, filepath.Join(cfg.Local.DataDir, localDBFile))
		if err != nil {
			return nil, fmt.Errorf("application: local metadata: %w", err)
		}
		a.onClose(store.Close)
		st := &stores{objects: objects, records: store.Records(), groups: store.Groups()}

		// Local storage may still coordinate through postgres advisory locks.
		if cfg.EffectiveLockBackend() == config.LockPostgres {
			conn, err := a.openDatabase(ctx)
			if err != nil {
				return nil, err
			}
			st.db = conn
		}
		return st, nil

	case config.StorageCloud:
		objects, err := objectstore.NewMinio(ctx, objectstore.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("application: s3 objects: %w", err)
		}
		conn, err := a.openDatabase(ctx)
		if err != nil {
			return nil, err
		}
		return &stores{
			objects: objects,
			records: db.NewAssetStore(conn),
			groups:  db.NewGroupStore(conn),
			db:      conn,
		}, nil
	}
	return nil, fmt.Errorf("application: unknown storage backend %q", cfg.StorageBackend)
}

func (a *App) openDatabase(ctx context.Context) (*db.DatabaseConnection, error) {
	pool, err := OpenDBPoolWithRetry(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("application: %w", err)
	}
	conn, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("application: database connection: %w", err)
	}
	a.onClose(func() error { conn.Close(); return nil })
	return conn, nil
}

func (a *App) openLocks(ctx context.Context, st *stores) (namelock.Locker, error) {
	cfg := a.Config
	switch cfg.EffectiveLockBackend() {
	case config.LockLocal:
		return namelock.NewLocal(), nil
	case config.LockFile:
		locks, err := namelock.NewFile(filepath.Join(cfg.Local.DataDir, localLocksDir))
		if err != nil {
			return nil, fmt.Errorf("application: file locks: %w", err)
		}
		return locks, nil
	case config.LockPostgres:
		if st.db == nil {
			return nil, errors.New("application: postgres locks need a database connection")
		}
		return db.NewAdvisoryLocker(st.db.Pool, "asset-name"), nil
	case config.LockRedis:
		client, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("application: %w", err)
		}
		a.onClose(client.Close)
		return namelock.NewRedis(client, cfg.Redis.LockPrefix, cfg.Redis.LockTTL), nil
	}
	return nil, fmt.Errorf("application: unknown lock backend %q", cfg.EffectiveLockBackend())
}
