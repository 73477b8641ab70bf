package model

import "time"

// User 表示一个注册账户。
//
// Username 与 Email 都由唯一索引约束，注册时的存在性检查与插入之间的竞争由数据库兜底。
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash
	CreatedAt    time.Time `json:"created_at"`
}
