package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TreeCache 已展开BOM树的redis缓存。只挂在读路径上：
// 写入使本BOM的缓存失效，嵌套引用它的父树靠TTL过期——
// 读侧短暂过时是既定接受的属性，不是正确性问题。
// nil接收者安全，未配置redis时全部为空操作。
type TreeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTreeCache(rdb *redis.Client, ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TreeCache{rdb: rdb, ttl: ttl}
}

func treeKey(bomID string) string {
	return "erp:bom:tree:" + bomID
}

func (c *TreeCache) Get(ctx context.Context, bomID string) (*TreeNode, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, treeKey(bomID)).Bytes()
	if err != nil {
		return nil, false
	}
	var node TreeNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, false
	}
	return &node, true
}

func (c *TreeCache) Set(ctx context.Context, bomID string, node *TreeNode) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(node)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, treeKey(bomID), data, c.ttl)
}

func (c *TreeCache) Invalidate(ctx context.Context, bomID string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, treeKey(bomID))
}
