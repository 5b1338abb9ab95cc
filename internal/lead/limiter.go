package lead

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const submitKeyPrefix = "submit:ip:"

var ErrRateLimited = errors.New("too many submissions")

// SubmitLimiter 用Redis有序集合实现按IP的滑动窗口限流
type SubmitLimiter struct {
	rdb     *redis.Client
	limit   int64
	window  time.Duration
	healthy func() bool
}

// NewSubmitLimiter 创建限流器；healthy 返回false时直接放行，避免Redis故障阻断报名
func NewSubmitLimiter(rdb *redis.Client, limit int, window time.Duration, healthy func() bool) *SubmitLimiter {
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &SubmitLimiter{rdb: rdb, limit: int64(limit), window: window, healthy: healthy}
}

// SubmitCompensator 封装了一次IP计数增加操作的回滚逻辑。
// 在业务流程失败时，通过defer语句执行补偿。
type SubmitCompensator struct {
	rdb       *redis.Client
	key       string
	member    string
	committed bool
}

// generateMemberID 根据给定的时间生成一个16字节的、抗冲突的ID
// 结构: [ 8字节纳秒时间戳 (Big Endian) | 8字节随机数 ]
func generateMemberID(t time.Time) (string, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	if _, err := rand.Read(b[8:16]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Allow 为一个IP原子地记录一次提交，并判断其在窗口内是否超限。
// 超限时已记录的成员会被立即移除，并返回 ErrRateLimited。
// 返回的补偿句柄可能为nil（Redis不可用时放行）。
func (l *SubmitLimiter) Allow(ctx context.Context, ip string, at time.Time) (*SubmitCompensator, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 || !l.healthy() {
		return nil, nil
	}
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("无效的IP: %q", ip)
	}

	key := submitKeyPrefix + ip
	minScore := float64(at.Add(-l.window).UnixMicro())
	member, err := generateMemberID(at)
	if err != nil {
		return nil, fmt.Errorf("生成 memberID 失败: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", minScore))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMicro()), Member: member})
	pipe.Expire(ctx, key, l.window+time.Minute)
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis 故障时放行
		logger.WarnCtx(ctx, "提交限流事务失败，放行本次请求", zap.Error(err))
		return nil, nil
	}

	if countCmd.Val() > l.limit {
		l.rdb.ZRem(ctx, key, member)
		return nil, ErrRateLimited
	}
	return &SubmitCompensator{rdb: l.rdb, key: key, member: member}, nil
}

// Commit 标记上层业务已成功，阻止后续的回滚操作。
func (c *SubmitCompensator) Commit() {
	if c != nil {
		c.committed = true
	}
}

// RollbackUnlessCommitted 用于defer调用。
// 如果Commit()没有被调用，它会从有序集合中移除本次提交对应的成员。
func (c *SubmitCompensator) RollbackUnlessCommitted() {
	if c == nil || c.committed {
		return
	}
	// 调用方的ctx可能已被取消，补偿使用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.ZRem(ctx, c.key, c.member).Err(); err != nil {
		logger.Error("提交计数补偿操作失败", zap.String("key", c.key), zap.Error(err))
	}
}
