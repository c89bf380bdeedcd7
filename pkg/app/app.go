// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tckvault/pkg/apply"
	"tckvault/pkg/meta"
	"tckvault/pkg/resolve"
	"tckvault/pkg/storage"
	"tckvault/pkg/storage/cache"
	"tckvault/pkg/storage/disk"
	"tckvault/pkg/storage/memory"
	"tckvault/pkg/storage/s3"
	"tckvault/pkg/storage/stacked"
	"tckvault/pkg/store"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有"单例"服务
type App struct {
	Backend storage.Backend
	Store   *store.GraphStore
	Cache   *resolve.Cache
	// Index 仅在 storage.type=sql 时存在
	Index *meta.Repository

	RepoPath string
}

// NewApp 是工厂函数，按 Viper 配置组装存储栈，不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	storePath := viper.GetString("storage.path")

	backend, index, err := initBackend(ctx, storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	opts := []store.Option{
		store.WithAliasPolicy(store.NewAliasPolicy(viper.GetStringSlice("alias.immutable")...)),
	}
	if index != nil {
		opts = append(opts, store.WithLeafIndexer(index))
	}
	gs := store.New(backend, opts...)

	return &App{
		Backend:  backend,
		Store:    gs,
		Cache:    resolve.New(gs),
		Index:    index,
		RepoPath: storePath,
	}, nil
}

// NewApplier 按配置 (apply.skip, apply.toplevel) 构建 Applier
func (a *App) NewApplier(dir apply.Directory, opts ...apply.Option) *apply.Applier {
	base := []apply.Option{apply.WithSkip(viper.GetStringSlice("apply.skip")...)}
	if top := viper.GetString("apply.toplevel"); top != "" {
		base = append(base, apply.WithTopLevel(top))
	}
	return apply.New(a.Cache, dir, append(base, opts...)...)
}

func (a *App) Close() error {
	if c, ok := a.Backend.(storage.Closer); ok {
		return c.Close()
	}
	return nil
}

// initBackend: 主存储 -> 只读的下层 (storage.stack) -> Redis 缓存 (cache.redis_url)
func initBackend(ctx context.Context, storePath string) (storage.Backend, *meta.Repository, error) {
	primary, index, err := initPrimary(ctx, storePath)
	if err != nil {
		return nil, nil, err
	}

	var backend storage.Backend = primary
	if layers := viper.GetStringSlice("storage.stack"); len(layers) > 0 {
		lower := make([]storage.Backend, 0, len(layers))
		for _, spec := range layers {
			b, err := initLayer(spec)
			if err != nil {
				return nil, nil, err
			}
			lower = append(lower, stacked.ReadOnly(b))
		}
		backend = stacked.New(primary, lower...)
	}

	if url := viper.GetString("cache.redis_url"); url != "" {
		cached, err := cache.NewCachedBackend(backend, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("cache.ttl"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
		backend = cached
	}
	return backend, index, nil
}

func initPrimary(ctx context.Context, storePath string) (storage.Backend, *meta.Repository, error) {
	storageType := viper.GetString("storage.type")
	switch storageType {
	case "memory":
		return memory.New(), nil, nil

	case "", "disk":
		if storePath == "" {
			return nil, nil, errors.New("storage path not set")
		}
		b, err := disk.NewAdapter(storePath)
		return b, nil, err

	case "s3":
		b, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil

	case "sql":
		db, err := meta.NewDB(ctx, meta.Config{
			Driver:   viper.GetString("database.driver"),
			DSN:      viper.GetString("database.dsn"),
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
			Verbose:  viper.GetBool("database.verbose"),
		})
		if err != nil {
			return nil, nil, err
		}
		repo := meta.NewRepository(db)
		return repo, repo, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// initLayer 解析 "disk:<path>" 形式的下层存储
func initLayer(spec string) (storage.Backend, error) {
	kind, arg, ok := strings.Cut(spec, ":")
	if !ok || arg == "" {
		return nil, fmt.Errorf("invalid storage.stack entry %q (want kind:arg)", spec)
	}
	switch kind {
	case "disk":
		return disk.NewAdapter(arg)
	default:
		return nil, fmt.Errorf("unsupported stack layer type: %s", kind)
	}
}
