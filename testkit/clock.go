package testkit

import (
	"sync"
	"time"
)

// Clock 可手动推进的时钟，Now 方法可直接作为各组件 WithClock 的参数
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock 从一个固定时刻开始
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 向前推进 d，d 为负数时模拟时钟回拨
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set 将时钟设置为 t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
