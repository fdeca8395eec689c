package service

import (
	"math/rand"
	"sync"
	"time"
)

// Picker 在 [0, n) 中均匀选一个下标，n > 0
// 不要求密码学安全
type Picker interface {
	Intn(n int) int
}

// PickerFunc 便于测试注入固定结果
type PickerFunc func(n int) int

func (f PickerFunc) Intn(n int) int {
	return f(n)
}

type randomPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPicker 以当前时间为种子
func NewRandomPicker() Picker {
	return NewSeededPicker(time.Now().UnixNano())
}

// NewSeededPicker 固定种子，结果可复现
func NewSeededPicker(seed int64) Picker {
	return &randomPicker{rnd: rand.New(rand.NewSource(seed))}
}

func (p *randomPicker) Intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(n)
}
