// Package store 提供 core.Store / core.HashStore 的实现，用于持久化训练产物。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.HashStore = store.NewMemoryStore()
//	r, err := store.NewRedisStore("localhost:6379", 0)
package store

import "github.com/rushteam/rankfit/core"

// ErrNotFound 是 key 不存在时返回的错误
var ErrNotFound = core.ErrStoreNotFound
