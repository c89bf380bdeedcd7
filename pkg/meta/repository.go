package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tckvault/pkg/core"
	"tckvault/pkg/storage"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")

// 单次 PutAlias 在 CAS 冲突时的最大重试次数
const maxAliasRetries = 5

// Repository 把 SQL 数据库暴露为 storage.Backend，同时维护叶子索引
type Repository struct {
	db *DB
}

var _ storage.Backend = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// -----------------------------------------------------------------------------
// 1. 对象 (Objects)
// -----------------------------------------------------------------------------

func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	var obj ObjectModel
	err := r.db.GetConn().WithContext(ctx).
		Where("digest = ?", key).
		First(&obj).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// Put 幂等写入：已存在且内容相同则什么都不做，内容不同返回 ErrConflict
func (r *Repository) Put(ctx context.Context, key string, data []byte) error {
	model := ObjectModel{Digest: key, Data: data}
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "digest"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	// DoNothing 不会报错，回读确认落库的就是我们的内容
	stored, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if !bytes.Equal(stored, data) {
		return fmt.Errorf("%w: %s", storage.ErrConflict, key)
	}
	return nil
}

// -----------------------------------------------------------------------------
// 2. 别名 (Aliases)
// -----------------------------------------------------------------------------

// GetAliasRecord 返回完整的 alias 行 (包含版本号)
func (r *Repository) GetAliasRecord(ctx context.Context, name string) (*AliasModel, error) {
	var alias AliasModel
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&alias).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

func (r *Repository) GetAlias(ctx context.Context, name string) (string, error) {
	alias, err := r.GetAliasRecord(ctx, name)
	if err != nil {
		return "", err
	}
	return alias.Digest, nil
}

// UpdateAlias 原子更新别名 (CAS - Compare And Swap)
// oldVersion: 之前读到的版本号，0 表示首次创建。
func (r *Repository) UpdateAlias(ctx context.Context, name, digest string, oldVersion int64) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if oldVersion == 0 {
			alias := AliasModel{
				Name:    name,
				Digest:  digest,
				Version: 1,
			}
			if err := tx.Create(&alias).Error; err != nil {
				// PG 与 SQLite 的唯一约束错误不一样
				if errors.Is(err, gorm.ErrDuplicatedKey) ||
					strings.Contains(err.Error(), "UNIQUE constraint failed") {
					return ErrConcurrentUpdate
				}
				return fmt.Errorf("failed to create alias: %w", err)
			}
			return nil
		}

		// SQL: UPDATE aliases SET digest = ?, version = version + 1 WHERE name = ? AND version = ?
		result := tx.Model(&AliasModel{}).
			Where("name = ? AND version = ?", name, oldVersion).
			Updates(map[string]any{
				"digest":     digest,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
}

// PutAlias 以 CAS 循环实现 last-writer-wins
func (r *Repository) PutAlias(ctx context.Context, name, digest string) error {
	for range maxAliasRetries {
		var version int64
		current, err := r.GetAliasRecord(ctx, name)
		switch {
		case err == nil:
			if current.Digest == digest {
				return nil
			}
			version = current.Version
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}

		err = r.UpdateAlias(ctx, name, digest, version)
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
	}
	return fmt.Errorf("put alias %s: %w", name, ErrConcurrentUpdate)
}

// List 返回以 prefix 开头的别名，按名字排序
func (r *Repository) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := r.db.GetConn().WithContext(ctx).
		Model(&AliasModel{}).
		Where("name LIKE ?", prefix+"%").
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}

	// LIKE 会把 '_' 和 '%' 当通配符，这里再精确过滤一次
	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// 3. 叶子索引 (Leaf Indexing)
// -----------------------------------------------------------------------------

// IndexLeaf 将 PropertyLeaf "投影" 到 SQL 中，重复写入被忽略
func (r *Repository) IndexLeaf(ctx context.Context, leaf *core.PropertyLeaf) error {
	props := leaf.Properties()
	pairs := make([][2]string, 0, len(props))
	for _, p := range props {
		pairs = append(pairs, [2]string{p.Key, p.Value})
	}
	propsJSON, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	model := LeafIndex{
		Digest:     leaf.ID().String(),
		Name:       leaf.Name(),
		TypeName:   leaf.TypeName(),
		Kind:       leaf.Kind().String(),
		Properties: datatypes.JSON(propsJSON),
	}
	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "digest"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to index leaf: %w", err)
	}
	return nil
}

// FindLeaves 按组件名查找所有写入过的叶子，最新的在前
func (r *Repository) FindLeaves(ctx context.Context, name string, limit int) ([]LeafIndex, error) {
	var leaves []LeafIndex
	q := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		Order("created_at DESC").
		Order("digest ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&leaves).Error
	return leaves, err
}

// FindLeavesByType 按类型名查找
func (r *Repository) FindLeavesByType(ctx context.Context, typeName string, limit int) ([]LeafIndex, error) {
	var leaves []LeafIndex
	q := r.db.GetConn().WithContext(ctx).
		Where("type_name = ?", typeName).
		Order("name ASC").
		Order("digest ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&leaves).Error
	return leaves, err
}

// DecodeProperties 还原索引行中保存的有序属性列表
func (l LeafIndex) DecodeProperties() ([]core.Property, error) {
	var pairs [][2]string
	if err := json.Unmarshal(l.Properties, &pairs); err != nil {
		return nil, err
	}
	props := make([]core.Property, 0, len(pairs))
	for _, p := range pairs {
		props = append(props, core.Property{Key: p[0], Value: p[1]})
	}
	return props, nil
}
