// Package ledger implements the account store and the per-user task and note
// ledgers on top of gorm.
//
// Every operation takes the caller's account id explicitly. Mutations load the
// record, confirm it exists, confirm the caller owns it, then write, all inside
// one transaction.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tasknotes/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Migrate 创建或更新 users / tasks / notes 表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.Note{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// 与 model 中的 varchar 列宽一致，按字符计数。
const (
	maxUsernameLen  = 50
	maxEmailLen     = 100
	maxTitleLen     = 100
	maxPriorityLen  = 20
	maxPasswordSize = 72 // bcrypt 只接受 72 字节以内的口令
)

func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

// Clock returns the current time.
type Clock func() time.Time

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
