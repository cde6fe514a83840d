package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"av1conv/internal/adapters/state/filestate"
	"av1conv/internal/adapters/state/pebblestate"
	"av1conv/internal/adapters/state/redisstate"
	"av1conv/internal/adapters/storage/gcs"
	"av1conv/internal/adapters/storage/gdrive"
	"av1conv/internal/adapters/storage/localfs"
	"av1conv/internal/adapters/storage/miniostore"
	"av1conv/internal/adapters/storage/s3store"
	"av1conv/internal/config"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/repositories"
)

// NewProvider builds the named object storage (config.Config
// StorageProvider). Names are case-insensitive; empty means localfs.
func NewProvider(ctx context.Context, provider string) (Provider, error) {
	switch provider = strings.ToLower(strings.TrimSpace(provider)); provider {
	case "":
		return NewProvider(ctx, "localfs")
	case "localfs":
		root := config.Env("STORAGE_LOCAL_ROOT", filepath.Join(os.TempDir(), "av1conv", "storage"))
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, errors.Wrap(err, "storage.localfs", "create storage root")
		}
		return localfs.New(root), nil

	case "gdrive":
		return newGDriveProvider(ctx)

	case "s3":
		store, err := s3store.New(s3store.Config{
			Bucket:    config.Env("S3_BUCKET", ""),
			Region:    config.Env("S3_REGION", "us-east-1"),
			Endpoint:  config.Env("S3_ENDPOINT", ""),
			AccessKey: config.Env("S3_ACCESS_KEY_ID", ""),
			SecretKey: config.Env("S3_SECRET_ACCESS_KEY", ""),
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case "gcs":
		store, err := gcs.New(ctx, gcs.Config{
			Bucket:          config.Env("GCS_BUCKET", ""),
			CredentialsFile: config.Env("GCS_CREDENTIALS_FILE", ""),
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case "minio":
		store, err := miniostore.New(miniostore.Config{
			Endpoint:  config.Env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: config.Env("MINIO_ACCESS_KEY", ""),
			SecretKey: config.Env("MINIO_SECRET_KEY", ""),
			Bucket:    config.Env("MINIO_BUCKET", ""),
			UseSSL:    config.BoolEnv("MINIO_USE_SSL", false),
			Region:    config.Env("MINIO_REGION", ""),
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, errors.ValidationField("STORAGE_PROVIDER", "unknown storage provider: "+provider)
	}
}

func newGDriveProvider(ctx context.Context) (Provider, error) {
	clientID := config.MustEnv("GDRIVE_CLIENT_ID")
	clientSecret := config.MustEnv("GDRIVE_CLIENT_SECRET")
	refreshToken := config.MustEnv("GDRIVE_REFRESH_TOKEN")
	folderID := config.Env("GDRIVE_FOLDER_ID", "")

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: refreshToken}
	httpClient := conf.Client(context.Background(), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "storage.gdrive", "create drive service")
	}

	return gdrive.NewClient(srv, folderID), nil
}

// NewStateStore builds the named job state backend (config.Config
// StateBackend, empty means file). rdb is required only for the redis
// backend.
func NewStateStore(ctx context.Context, backend string, rdb *redis.Client) (StateStore, error) {
	switch backend = strings.ToLower(strings.TrimSpace(backend)); backend {
	case "":
		return NewStateStore(ctx, "file", rdb)
	case "file":
		s, err := filestate.New(config.Env("STATE_DIR", filepath.Join(os.TempDir(), "av1conv", "state")))
		if err != nil {
			return nil, err
		}
		return s, nil

	case "pebble":
		s, err := pebblestate.Open(config.Env("STATE_PEBBLE_DIR", filepath.Join(os.TempDir(), "av1conv", "pebble")))
		if err != nil {
			return nil, err
		}
		return s, nil

	case "redis":
		if rdb == nil {
			return nil, errors.ValidationField("STATE_BACKEND", "redis state backend needs REDIS_ADDR")
		}
		return redisstate.New(rdb, config.Env("STATE_REDIS_PREFIX", redisstate.DefaultPrefix)), nil

	case "postgres":
		pool, err := pgxpool.New(ctx, config.MustEnv("DATABASE_URL"))
		if err != nil {
			return nil, errors.Wrap(err, "storage.postgres", "create pool")
		}
		repo := repositories.NewJobStateRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil

	case "sqlite":
		path := config.Env("STATE_SQLITE_PATH", filepath.Join(os.TempDir(), "av1conv", "state.db"))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "storage.sqlite", "create database dir")
		}
		repo, err := repositories.NewSQLiteJobStateRepository(path)
		if err != nil {
			return nil, err
		}
		return repo, nil

	default:
		return nil, errors.ValidationField("STATE_BACKEND", "unknown state backend: "+backend)
	}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "storage.redis", "redis unreachable").
			WithField("addr", addr)
	}
	return rdb, nil
}
