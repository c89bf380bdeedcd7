package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tckvault/pkg/storage"

	"github.com/redis/go-redis/v9"
)

var _ storage.Backend = (*CachedBackend)(nil)

// CachedBackend 是一个装饰器，它为底层的 storage.Backend 添加 Redis 缓存层
// 对象按 digest 寻址且不可变，所以对象字节可以直接缓存；alias 是可变指针，一律透传。
type CachedBackend struct {
	backend storage.Backend // 被装饰的底层存储 (如 S3)
	client  *redis.Client   // Redis 客户端
	ttl     time.Duration   // 缓存过期时间 (例如 24h)
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间，0 表示永不过期
}

func NewCachedBackend(backend storage.Backend, cfg Config) (*CachedBackend, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedBackend{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedBackend) cacheKey(key string) string {
	return "tck:obj:" + key
}

// Get 优先查 Redis
func (s *CachedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	ck := s.cacheKey(key)

	data, err := s.client.Get(ctx, ck).Bytes()
	switch {
	case err == nil:
		return data, nil
	case !errors.Is(err, redis.Nil):
		// 缓存故障降级：Redis 挂了就退化为无缓存模式
		slog.Warn("redis get failed, falling back to backend", slog.String("key", key), slog.Any("err", err))
	}

	data, err = s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// 缓存回填：异步写入，不阻塞主流程
	// 使用 context.Background() 确保即使上层 ctx 取消，回填也能完成
	go func(payload []byte) {
		fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.client.Set(fillCtx, ck, payload, s.ttl)
	}(data)

	return data, nil
}

// Put 穿透到底层存储，成功后写缓存
func (s *CachedBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := s.backend.Put(ctx, key, data); err != nil {
		return err
	}
	// 这里的 Set 错误可以忽略，不影响主流程
	if err := s.client.Set(ctx, s.cacheKey(key), data, s.ttl).Err(); err != nil {
		slog.Warn("redis set failed", slog.String("key", key), slog.Any("err", err))
	}
	return nil
}

func (s *CachedBackend) GetAlias(ctx context.Context, name string) (string, error) {
	return s.backend.GetAlias(ctx, name)
}

func (s *CachedBackend) PutAlias(ctx context.Context, name, digest string) error {
	return s.backend.PutAlias(ctx, name, digest)
}

func (s *CachedBackend) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// Close 关闭 Redis 连接，以及底层存储 (如果它持有连接)
func (s *CachedBackend) Close() error {
	err := s.client.Close()
	if c, ok := s.backend.(storage.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
