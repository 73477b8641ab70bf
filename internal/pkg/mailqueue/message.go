package mailqueue

import "time"

// KindWelcome 是注册成功后的欢迎邮件。
const KindWelcome = "welcome"

// Message 表示邮件队列中的一条投递任务。
type Message struct {
	Kind      string    `json:"kind"`
	ToEmail   string    `json:"to_email"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`  // 入队时间
	Retry     int       `json:"retry"`      // 已重试次数
	NotBefore time.Time `json:"not_before"` // 零值表示立即投递
}

// NewWelcomeMessage 创建一条欢迎邮件消息。
func NewWelcomeMessage(toEmail, username string) *Message {
	return &Message{
		Kind:      KindWelcome,
		ToEmail:   toEmail,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}
}
