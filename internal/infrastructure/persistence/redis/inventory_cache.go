package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiebiao/library/internal/domain/inventory"
)

const inventoryKeyPrefix = "library:inventory:"

// cachedRecord 缓存结构,与领域实体解耦
type cachedRecord struct {
	BookID    uint      `json:"book_id"`
	Copies    int       `json:"copies"`
	Available bool      `json:"available"`
	Version   int64     `json:"version"`
	DateAdded time.Time `json:"date_added"`
	UpdatedAt time.Time `json:"updated_at"`
}

// setIfNewer 缓存中已有同版本或更新版本时不覆盖
// KEYS[1]=key ARGV[1]=payload ARGV[2]=version ARGV[3]=ttl(ms)
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, obj = pcall(cjson.decode, cur)
  if ok and type(obj) == 'table' and tonumber(obj.version) and tonumber(obj.version) >= tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// InventoryCache 库存读缓存,实现ports.InventoryCache
// 读路径回填和写操作提交后的写穿都走setIfNewer,旧版本不会覆盖新版本
type InventoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInventoryCache 创建库存缓存,ttl<=0时默认5分钟
func NewInventoryCache(client *redis.Client, ttl time.Duration) *InventoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &InventoryCache{client: client, ttl: ttl}
}

func inventoryKey(bookID uint) string {
	return fmt.Sprintf("%s%d", inventoryKeyPrefix, bookID)
}

// Get 未命中返回(nil, nil)
func (c *InventoryCache) Get(ctx context.Context, bookID uint) (*inventory.Record, error) {
	raw, err := c.client.Get(ctx, inventoryKey(bookID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, redisError(err, "读取库存缓存失败")
	}

	var cr cachedRecord
	if err := json.Unmarshal(raw, &cr); err != nil {
		// 脏数据直接删掉,按未命中处理
		_ = c.client.Del(ctx, inventoryKey(bookID)).Err()
		return nil, nil
	}
	return &inventory.Record{
		BookID:    cr.BookID,
		Copies:    cr.Copies,
		Available: cr.Available,
		Version:   cr.Version,
		DateAdded: cr.DateAdded,
		UpdatedAt: cr.UpdatedAt,
	}, nil
}

// Set 版本号大于缓存中的版本(或未缓存)时写入
func (c *InventoryCache) Set(ctx context.Context, r *inventory.Record) error {
	raw, err := json.Marshal(cachedRecord{
		BookID:    r.BookID,
		Copies:    r.Copies,
		Available: r.Available,
		Version:   r.Version,
		DateAdded: r.DateAdded,
		UpdatedAt: r.UpdatedAt,
	})
	if err != nil {
		return err
	}
	err = setIfNewer.Run(ctx, c.client, []string{inventoryKey(r.BookID)}, raw, r.Version, c.ttl.Milliseconds()).Err()
	if err != nil {
		return redisError(err, "写入库存缓存失败")
	}
	return nil
}

func (c *InventoryCache) Invalidate(ctx context.Context, bookIDs ...uint) error {
	if len(bookIDs) == 0 {
		return nil
	}
	keys := make([]string, len(bookIDs))
	for i, id := range bookIDs {
		keys[i] = inventoryKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return redisError(err, "删除库存缓存失败")
	}
	return nil
}
