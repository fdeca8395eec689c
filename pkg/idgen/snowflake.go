package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 业务单号生成
// ============================================================================
//
// 分配单号、缴款单号都不直接暴露自增主键，而是：
//
//   前缀 + 年月日时分秒 + 雪花ID后8位，例如 ALC2024011514305212345678
//
// 雪花ID：41位毫秒时间戳 | 10位机器ID | 12位序列号
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 单机内并发安全
type Snowflake struct {
	mu       sync.Mutex
	lastMS   int64
	workerID int64
	sequence int64
	now      func() time.Time
}

// NewSnowflake workerID 取值 0-1023
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间，当前为 %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID, now: time.Now}, nil
}

// Generate 生成下一个ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().UnixMilli()
	if ms < s.lastMS {
		// 时钟回拨时沿用上一毫秒，保证单调
		ms = s.lastMS
	}

	if ms == s.lastMS {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 本毫秒序列号用完，等待下一毫秒
			for ms <= s.lastMS {
				ms = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastMS = ms

	return ((ms - epoch) << timestampShift) | (s.workerID << workerIDShift) | s.sequence
}

var (
	mu               sync.Mutex
	defaultGenerator *Snowflake
)

// Init 设置默认生成器的机器ID，进程启动时调用一次
func Init(workerID int64) error {
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultGenerator = g
	mu.Unlock()
	return nil
}

// NextID 使用默认生成器；未初始化时按 workerID=1 创建
func NextID() int64 {
	mu.Lock()
	if defaultGenerator == nil {
		defaultGenerator, _ = NewSnowflake(1)
	}
	g := defaultGenerator
	mu.Unlock()
	return g.Generate()
}

func generateNo(prefix string) string {
	return fmt.Sprintf("%s%s%08d", prefix, time.Now().Format("20060102150405"), NextID()%100000000)
}

// GenerateAllocationNo 生成分配单号
func GenerateAllocationNo() string {
	return generateNo("ALC")
}

// GeneratePaymentNo 生成缴款单号
func GeneratePaymentNo() string {
	return generateNo("PMT")
}
