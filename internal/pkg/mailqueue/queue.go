// Package mailqueue delivers outgoing mail through a Redis Stream so that the
// request path never waits on SMTP.
package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tasknotes/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "tasknotes:mail:queue"
	DefaultGroup  = "mailers"
)

// FailureAction indicates how a failed message is handled.
type FailureAction string

const (
	FailureActionNone  FailureAction = "none"
	FailureActionRetry FailureAction = "retry"
	FailureActionDLQ   FailureAction = "dlq"
)

// Queue 封装 Redis Streams 上的邮件队列：发布、按消费者组读取、确认、重试与死信。
type Queue struct {
	rdb              *redis.Client
	logger           *slog.Logger
	stream           string
	group            string
	consumerID       string
	blockTime        time.Duration
	batchSize        int64
	pendingIdle      time.Duration
	pendingStart     string
	deadLetterStream string
	maxRetry         int
	retryBackoff     time.Duration
	now              func() time.Time
}

// Option 队列配置选项。
type Option func(*Queue)

// WithStream 设置 Stream 名称，死信 Stream 随之变为 "<stream>:dlq"。
func WithStream(stream string) Option {
	return func(q *Queue) {
		if stream != "" {
			q.stream = stream
			q.deadLetterStream = stream + ":dlq"
		}
	}
}

// WithConsumerID 设置消费者唯一标识。
func WithConsumerID(id string) Option {
	return func(q *Queue) {
		if id != "" {
			q.consumerID = id
		}
	}
}

// WithBlockTime 设置阻塞等待时间。
func WithBlockTime(d time.Duration) Option {
	return func(q *Queue) {
		q.blockTime = d
	}
}

// WithPendingIdle 设置 Pending 消息被重新认领前的最小空闲时间。
func WithPendingIdle(d time.Duration) Option {
	return func(q *Queue) {
		q.pendingIdle = d
	}
}

// WithMaxRetry 设置最大重试次数。
func WithMaxRetry(maxRetry int) Option {
	return func(q *Queue) {
		q.maxRetry = maxRetry
	}
}

// WithRetryBackoff 设置首次重试前的等待时间，之后每次重试翻倍。
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retryBackoff = d
		}
	}
}

// New 创建邮件队列。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - opts: 可选配置
//
// 返回值:
//   - *Queue: 队列实例
func New(rdb *redis.Client, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		rdb:              rdb,
		logger:           logger,
		stream:           DefaultStream,
		group:            DefaultGroup,
		consumerID:       fmt.Sprintf("mailer-%d", time.Now().UnixNano()),
		blockTime:        time.Second,
		batchSize:        10,
		pendingIdle:      time.Minute,
		pendingStart:     "0-0",
		deadLetterStream: DefaultStream + ":dlq",
		maxRetry:         3,
		retryBackoff:     30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Stream 返回 Stream 名称。
func (q *Queue) Stream() string {
	return q.stream
}

// DeadLetterStream 返回死信 Stream 名称。
func (q *Queue) DeadLetterStream() string {
	return q.deadLetterStream
}

// EnsureGroup 创建消费者组，已存在时忽略。
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	q.logger.Debug("mail consumer group ready",
		slog.String("stream", q.stream),
		slog.String("group", q.group))
	return nil
}

// Publish 使用 XADD 将消息追加到 Stream。
func (q *Queue) Publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.publishRaw(ctx, q.stream, map[string]interface{}{"data": string(data)})
}

func (q *Queue) publishRaw(ctx context.Context, stream string, values map[string]interface{}) error {
	msgID, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: false,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	q.logger.Debug("mail message published",
		slog.String("stream", stream),
		slog.String("msg_id", msgID))
	return nil
}

// Delivery 包含 Stream 消息 ID 的邮件消息。
type Delivery struct {
	ID      string
	Message *Message
}

// Read 先认领超时未确认的消息，没有时再阻塞读取新消息。
func (q *Queue) Read(ctx context.Context) ([]*Delivery, error) {
	pending, err := q.readPending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}
	return q.readNew(ctx)
}

func (q *Queue) readPending(ctx context.Context) ([]*Delivery, error) {
	messages, next, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumerID,
		MinIdle:  q.pendingIdle,
		Start:    q.pendingStart,
		Count:    q.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim failed: %w", err)
	}
	if next != "" {
		q.pendingStart = next
	}
	return q.parse(ctx, messages), nil
}

func (q *Queue) readNew(ctx context.Context) ([]*Delivery, error) {
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumerID,
		Streams:  []string{q.stream, ">"},
		Count:    q.batchSize,
		Block:    q.blockTime,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}
	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return q.parse(ctx, messages), nil
}

// parse 解析消息，无法解析的消息直接进入死信队列。
func (q *Queue) parse(ctx context.Context, messages []redis.XMessage) []*Delivery {
	if len(messages) == 0 {
		return nil
	}
	out := make([]*Delivery, 0, len(messages))
	for _, m := range messages {
		data, ok := m.Values["data"].(string)
		if !ok || data == "" {
			q.handlePoison(ctx, m.ID, fmt.Sprintf("%v", m.Values["data"]), "invalid message format")
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			q.handlePoison(ctx, m.ID, data, err.Error())
			continue
		}
		out = append(out, &Delivery{ID: m.ID, Message: &msg})
	}
	return out
}

// Ack 确认消息已处理。
func (q *Queue) Ack(ctx context.Context, msgID string) error {
	acked, err := q.rdb.XAck(ctx, q.stream, q.group, msgID).Result()
	if err != nil {
		return fmt.Errorf("xack failed: %w", err)
	}
	if acked == 0 {
		q.logger.Warn("mail message not acked (may already be acked)", slog.String("msg_id", msgID))
	}
	return nil
}

// Due 判断消息是否已到可投递时间。
func (q *Queue) Due(msg *Message) bool {
	return !q.now().Before(msg.NotBefore)
}

// HandleFailure 根据重试次数重新入队或放入死信队列，两种情况都会确认原消息。
// 重新入队的消息带上 NotBefore，等待 retryBackoff * 2^(Retry-1) 后才会再次投递。
func (q *Queue) HandleFailure(ctx context.Context, d *Delivery, cause error) (FailureAction, error) {
	if d == nil || d.Message == nil {
		return FailureActionNone, errors.New("message is nil")
	}
	d.Message.Retry++
	if d.Message.Retry > q.maxRetry {
		if err := q.publishDeadLetter(ctx, d.ID, d.Message, cause); err != nil {
			return FailureActionDLQ, err
		}
		metrics.MailJobsTotal.WithLabelValues("dlq").Inc()
		return FailureActionDLQ, q.Ack(ctx, d.ID)
	}
	d.Message.NotBefore = q.now().Add(q.retryBackoff << (d.Message.Retry - 1)).UTC()
	if err := q.Publish(ctx, d.Message); err != nil {
		return FailureActionRetry, err
	}
	metrics.MailJobsTotal.WithLabelValues("retry").Inc()
	return FailureActionRetry, q.Ack(ctx, d.ID)
}

// Defer 将未到期的消息原样放回队尾并确认原消息，不计入重试次数。
func (q *Queue) Defer(ctx context.Context, d *Delivery) error {
	if d == nil || d.Message == nil {
		return errors.New("message is nil")
	}
	if err := q.Publish(ctx, d.Message); err != nil {
		return err
	}
	return q.Ack(ctx, d.ID)
}

func (q *Queue) handlePoison(ctx context.Context, msgID, payload, reason string) {
	q.logger.Warn("invalid mail message", slog.String("msg_id", msgID), slog.String("reason", reason))
	if err := q.publishDeadLetter(ctx, msgID, payload, errors.New(reason)); err != nil {
		q.logger.Error("publish dead letter failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
	metrics.MailJobsTotal.WithLabelValues("dlq").Inc()
	if err := q.Ack(ctx, msgID); err != nil {
		q.logger.Error("ack poison message failed", slog.String("msg_id", msgID), slog.String("error", err.Error()))
	}
}

func (q *Queue) publishDeadLetter(ctx context.Context, msgID string, payload interface{}, cause error) error {
	raw := payload
	if msg, ok := payload.(*Message); ok {
		if data, err := json.Marshal(msg); err == nil {
			raw = string(data)
		}
	}
	return q.publishRaw(ctx, q.deadLetterStream, map[string]interface{}{
		"original_id": msgID,
		"payload":     raw,
		"reason":      cause.Error(),
		"failed_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Pending 获取已投递但未确认的消息数量。
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	info, err := q.rdb.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending failed: %w", err)
	}
	return info.Count, nil
}
