package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saghat/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 加锁：SET key value NX PX ttl
// 释放：Lua 脚本先比对 value 再 DEL，避免误删他人的锁
//
// 【注意】锁只缩小并发窗口，不是正确性的保证：
//   同一期的分配最终由 allocation 表的 (period_year, period_month) 唯一索引兜底，
//   同一成员同一期的缴款由 period_payment 的联合唯一索引兜底。
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 基于 Redis 的互斥锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	if value == "" {
		value = uuid.NewString()
	}
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 非阻塞获取
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞获取，最多重试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return fmt.Errorf("%w: key=%s", ErrLockFailed, l.key)
}

// Unlock 只释放自己持有的锁；返回是否真的删除了 key
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// NewAssignmentLock 同一期的分配互斥
func NewAssignmentLock(client *redis.Client, period model.Period, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("saghat:lock:assignment:%d:%d", period.Year, period.Month)
	return NewDistributedLock(client, key, "", ttl)
}

// NewMemberPaymentLock 同一成员的缴款互斥
func NewMemberPaymentLock(client *redis.Client, memberID int64) *DistributedLock {
	key := fmt.Sprintf("saghat:lock:payment:member:%d", memberID)
	return NewDistributedLock(client, key, "", 30*time.Second)
}
