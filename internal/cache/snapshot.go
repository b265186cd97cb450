// Package cache 缓存已批准课表，避免每次推荐都回源
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hissa/hissa/pkg/model"
)

const allSchools = "*"

// SnapshotCache 按学校缓存已批准课表
type SnapshotCache struct {
	cache *gocache.Cache
}

// NewSnapshotCache 创建缓存，ttl 为 0 时不缓存
func NewSnapshotCache(ttl, cleanupInterval time.Duration) *SnapshotCache {
	if ttl <= 0 {
		return &SnapshotCache{}
	}
	return &SnapshotCache{cache: gocache.New(ttl, cleanupInterval)}
}

func key(schoolID string) string {
	if schoolID == "" {
		return allSchools
	}
	return schoolID
}

// Get 读取缓存的课表集合
func (c *SnapshotCache) Get(schoolID string) (model.ScheduleSet, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key(schoolID))
	if !ok {
		return nil, false
	}
	set, ok := v.(model.ScheduleSet)
	return set, ok
}

// Set 写入缓存
func (c *SnapshotCache) Set(schoolID string, set model.ScheduleSet) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.SetDefault(key(schoolID), set)
}

// Invalidate 清除某校及全局条目
func (c *SnapshotCache) Invalidate(schoolID string) {
	if c == nil || c.cache == nil {
		return
	}
	if schoolID == "" {
		c.cache.Flush()
		return
	}
	c.cache.Delete(key(schoolID))
	c.cache.Delete(allSchools)
}

// Len 当前条目数
func (c *SnapshotCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.ItemCount()
}
