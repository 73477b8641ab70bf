package model

import (
	"time"
)

// DefaultPriority is applied when a task is saved without a priority label.
const DefaultPriority = "Normal"

// Task 表示用户的一条待办任务。
//
// 任务只属于一个用户（UserID），创建后不可转移。DueDate 为空表示没有截止日期。
type Task struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Title       string    `gorm:"type:varchar(100);not null" json:"title"`
	DueDate     *Date     `gorm:"type:varchar(10);index" json:"due_date"`
	Priority    string    `gorm:"type:varchar(20);default:Normal" json:"priority"`
	IsCompleted bool      `gorm:"default:false" json:"is_completed"`
	CreatedAt   time.Time `gorm:"not null" json:"timestamp"` // 服务端 UTC 时间，仅创建时写入
}

// Note 表示用户的一条笔记。
type Note struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"type:varchar(100);not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null" json:"timestamp"`              // 列表按此排序
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"` // 由账本时钟写入
}
