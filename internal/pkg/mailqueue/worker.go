package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tasknotes/internal/pkg/metrics"
	"tasknotes/internal/pkg/notify"
)

// Outbox 实现 notify.Notifier：只负责入队，真正的发送由 Worker 完成。
type Outbox struct {
	queue *Queue
}

// NewOutbox 创建基于队列的通知器。
func NewOutbox(q *Queue) *Outbox {
	return &Outbox{queue: q}
}

var _ notify.Notifier = (*Outbox)(nil)

// SendWelcome 将欢迎邮件放入队列。
func (o *Outbox) SendWelcome(ctx context.Context, toEmail, username string) error {
	if strings.TrimSpace(toEmail) == "" {
		return errors.New("recipient email is empty")
	}
	if err := o.queue.Publish(ctx, NewWelcomeMessage(toEmail, username)); err != nil {
		return err
	}
	metrics.MailJobsTotal.WithLabelValues("queued").Inc()
	return nil
}

// Worker 从队列读取邮件任务并交给实际的发送器。
type Worker struct {
	queue   *Queue
	sender  notify.Notifier
	logger  *slog.Logger
	backoff time.Duration
}

// NewWorker 创建邮件投递 worker。
func NewWorker(q *Queue, sender notify.Notifier, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: q, sender: sender, logger: logger, backoff: time.Second}
}

// Run 持续消费直到 ctx 被取消。Redis 读取失败或整批消息都未到期时等待 backoff。
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	w.logger.Info("mail worker started", slog.String("stream", w.queue.Stream()))
	for {
		if ctx.Err() != nil {
			w.logger.Info("mail worker stopped")
			return nil
		}
		batch, err := w.queue.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("read mail queue failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
			continue
		}
		deferred := 0
		for _, d := range batch {
			if !w.handle(ctx, d) {
				deferred++
			}
		}
		if len(batch) > 0 && deferred == len(batch) {
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
		}
	}
}

// handle 投递单条消息：成功则确认，失败则重试或进入死信队列。
// 未到 NotBefore 的消息放回队列并返回 false。
func (w *Worker) handle(ctx context.Context, d *Delivery) bool {
	if !w.queue.Due(d.Message) {
		if err := w.queue.Defer(ctx, d); err != nil {
			w.logger.Error("defer mail message failed", slog.String("msg_id", d.ID), slog.String("error", err.Error()))
		}
		return false
	}

	var err error
	switch d.Message.Kind {
	case KindWelcome:
		err = w.sender.SendWelcome(ctx, d.Message.ToEmail, d.Message.Username)
	default:
		w.queue.handlePoison(ctx, d.ID, d.Message.Kind, fmt.Sprintf("unknown mail kind %q", d.Message.Kind))
		return true
	}

	if err == nil {
		metrics.MailJobsTotal.WithLabelValues("sent").Inc()
		if ackErr := w.queue.Ack(ctx, d.ID); ackErr != nil {
			w.logger.Error("ack mail message failed", slog.String("msg_id", d.ID), slog.String("error", ackErr.Error()))
		}
		return true
	}

	action, ferr := w.queue.HandleFailure(ctx, d, err)
	w.logger.Warn("send mail failed",
		slog.String("msg_id", d.ID),
		slog.String("to", d.Message.ToEmail),
		slog.Int("retry", d.Message.Retry),
		slog.String("action", string(action)),
		slog.String("error", err.Error()))
	if ferr != nil {
		w.logger.Error("handle mail failure failed", slog.String("msg_id", d.ID), slog.String("error", ferr.Error()))
	}
	return true
}
