package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "wheel:events:"

// Channel 返回轮盘对应的Redis频道
func Channel(wheelID string) string {
	return channelPrefix + wheelID
}

// Bus 通过Redis Pub/Sub在多个实例之间广播轮盘事件
type Bus struct {
	rdb     *redis.Client
	healthy func() bool
}

func NewBus(rdb *redis.Client, healthy func() bool) *Bus {
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &Bus{rdb: rdb, healthy: healthy}
}

// Publish 发布一个事件；Redis不可用时直接丢弃
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b.rdb == nil || !b.healthy() {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		logger.ErrorCtx(ctx, "序列化事件失败", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	// 请求ctx可能在响应后立刻取消，发布使用独立的短超时
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := b.rdb.Publish(pubCtx, Channel(e.WheelID), payload).Err(); err != nil {
		logger.WarnCtx(ctx, "发布事件失败", zap.String("type", string(e.Type)), zap.String("wheelId", e.WheelID), zap.Error(err))
	}
}

// Subscription 是一个轮盘频道的订阅
type Subscription struct {
	ps *redis.PubSub
	ch chan Event
}

// Subscribe 订阅一个轮盘的事件，ctx 取消或调用 Close 后通道关闭
func (b *Bus) Subscribe(ctx context.Context, wheelID string) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, Channel(wheelID))
	// 等待订阅确认，确保之后发布的消息不会丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("订阅轮盘事件失败: %w", err)
	}

	sub := &Subscription{ps: ps, ch: make(chan Event, 16)}
	go func() {
		defer close(sub.ch)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					logger.Warn("丢弃无法解析的事件", zap.Error(err))
					continue
				}
				select {
				case sub.ch <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}

// Events 返回事件通道
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close 取消订阅
func (s *Subscription) Close() error {
	return s.ps.Close()
}
