package notify

import "context"

// Notifier 定义账户通知接口。
type Notifier interface {
	// SendWelcome 发送注册欢迎邮件。
	//
	// 参数:
	//   ctx: 上下文
	//   toEmail: 接收邮箱
	//   username: 新注册的用户名
	SendWelcome(ctx context.Context, toEmail string, username string) error
}
