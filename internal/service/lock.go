package service

import (
	"context"

	"saghat/internal/infrastructure/lock"

	"github.com/rs/zerolog"
)

// releaseLock 释放分布式锁，失败只记录日志
// 返回 false 说明锁已过期，期间可能有其他请求进入，数据库唯一索引仍会兜底
func releaseLock(log zerolog.Logger, l *lock.DistributedLock) {
	released, err := l.Unlock(context.Background())
	if err != nil {
		log.Warn().Str("key", l.Key()).Err(err).Msg("释放锁失败")
		return
	}
	if !released {
		log.Warn().Str("key", l.Key()).Msg("锁已过期或被他人持有")
	}
}
