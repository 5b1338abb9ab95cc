// Package event fans spin lifecycle changes out to every open wheel display.
// Events are best-effort notifications; clients re-read state over HTTP.
package event

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	SpinCreated   Type = "spin.created"
	SpinFinalized Type = "spin.finalized"
	SpinCancelled Type = "spin.cancelled"
	PoolUpdated   Type = "pool.updated"
)

// Event 是推送给前端的一条消息
type Event struct {
	Type    Type           `json:"type"`
	WheelID string         `json:"wheelId"`
	SpinID  string         `json:"spinId,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

// Publisher 发布事件，失败只记录日志
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder 在内存中记录事件，供测试断言
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events 返回已记录事件的副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types 返回已记录事件的类型序列
func (r *Recorder) Types() []Type {
	events := r.Events()
	out := make([]Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
