package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rushteam/rankfit/core"
	"github.com/rushteam/rankfit/pkg/logging"
)

// Repository 把产物持久化到 core.Store。
// 当 Store 同时实现 core.HashStore 时，分组权重按分组拆成 hash 字段：{prefix}{name}:groups → {group: weights}。
type Repository struct {
	store  core.Store
	prefix string
}

// NewRepository 创建仓库，prefix 为 key 前缀（如 "rankfit:artifact:"）
func NewRepository(store core.Store, prefix string) *Repository {
	return &Repository{store: store, prefix: prefix}
}

func (r *Repository) key(name string) string { return r.prefix + name }

func (r *Repository) groupsKey(name string) string { return r.prefix + name + ":groups" }

// Save 写入产物，返回其内容 id
func (r *Repository) Save(ctx context.Context, name string, a Artifact, ttl ...int) (string, error) {
	env, err := toEnvelope(a)
	if err != nil {
		return "", err
	}

	hs, hashed := r.store.(core.HashStore)
	if g, ok := a.(*Grouped); ok && hashed {
		if err := hs.Delete(ctx, r.groupsKey(name)); err != nil {
			return "", fmt.Errorf("artifact: clear groups of %s: %w", name, err)
		}
		for gid, w := range g.W {
			data, err := json.Marshal(w)
			if err != nil {
				return "", fmt.Errorf("artifact: marshal group %d: %w", gid, err)
			}
			if err := hs.HSet(ctx, r.groupsKey(name), strconv.Itoa(int(gid)), data); err != nil {
				return "", fmt.Errorf("artifact: save group %d of %s: %w", gid, name, err)
			}
		}
		env.Groups = nil
		env.Hashed = true
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("artifact: marshal: %w", err)
	}
	if err := r.store.Set(ctx, r.key(name), data, ttl...); err != nil {
		return "", fmt.Errorf("artifact: save %s: %w", name, err)
	}
	logging.Debug("artifact saved", "name", name, "kind", a.Kind(), "id", env.ID, "store", r.store.Name())
	return env.ID, nil
}

// Load 读取产物；不存在时返回 core.ErrStoreNotFound
func (r *Repository) Load(ctx context.Context, name string) (Artifact, error) {
	data, err := r.store.Get(ctx, r.key(name))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal %s: %w", name, err)
	}
	if env.Hashed {
		hs, ok := r.store.(core.HashStore)
		if !ok {
			return nil, core.ConfigurationError(core.ModuleArtifact, "artifact: %s has hashed groups but store %s has no hash support", name, r.store.Name())
		}
		fields, err := hs.HGetAll(ctx, r.groupsKey(name))
		if err != nil {
			return nil, fmt.Errorf("artifact: load groups of %s: %w", name, err)
		}
		env.Groups = make(map[core.GroupID][]float64, len(fields))
		for field, raw := range fields {
			gid, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("artifact: bad group field %q: %w", field, err)
			}
			var w []float64
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, fmt.Errorf("artifact: unmarshal group %d: %w", gid, err)
			}
			env.Groups[core.GroupID(gid)] = w
		}
	}
	return env.artifact()
}

// Delete 删除产物及其分组 hash
func (r *Repository) Delete(ctx context.Context, name string) error {
	if err := r.store.Delete(ctx, r.key(name)); err != nil {
		return err
	}
	return r.store.Delete(ctx, r.groupsKey(name))
}
