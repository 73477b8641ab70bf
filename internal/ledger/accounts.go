package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasknotes/internal/apperr"
	"tasknotes/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	msgRegisterRequired = "Username, email and password are required."
	msgPasswordMismatch = "Passwords do not match."
	msgUsernameTaken    = "Username already taken. Please choose a different one."
	msgEmailTaken       = "Email already registered. Please use a different email or login."
	msgAccountTaken     = "Username or email already registered."
	msgLoginFailed      = "Login Unsuccessful. Please check email and password"
	msgUsernameTooLong  = "Username must be at most 50 characters."
	msgEmailTooLong     = "Email must be at most 100 characters."
	msgPasswordTooLong  = "Password must be at most 72 bytes."
)

// RegisterInput holds the registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Accounts 是账户存储。
type Accounts struct {
	db   *gorm.DB
	cost int
}

// NewAccounts 创建账户存储，cost 为 bcrypt 代价因子（非法值回退到默认值）。
func NewAccounts(db *gorm.DB, cost int) *Accounts {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{db: db, cost: cost}
}

// Register 校验注册表单并创建账户。
//
// 校验顺序：必填 → 两次密码一致 → 长度 → 用户名唯一 → 邮箱唯一。
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation(msgRegisterRequired)
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperr.Validation(msgPasswordMismatch)
	}
	switch {
	case tooLong(username, maxUsernameLen):
		return nil, apperr.Validation(msgUsernameTooLong)
	case tooLong(email, maxEmailLen):
		return nil, apperr.Validation(msgEmailTooLong)
	case len(in.Password) > maxPasswordSize:
		return nil, apperr.Validation(msgPasswordTooLong)
	}

	db := a.db.WithContext(ctx)
	usernameTaken, err := exists(db.Model(&model.User{}).Where("username = ?", username))
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	emailTaken, err := exists(db.Model(&model.User{}).Where("email = ?", email))
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if usernameTaken {
		return nil, apperr.Validation(msgUsernameTaken)
	}
	if emailTaken {
		return nil, apperr.Validation(msgEmailTaken)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, apperr.Validation(msgPasswordTooLong)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := db.Create(&user).Error; err != nil {
		// 并发注册时由唯一索引拦截
		if isDuplicateKey(err) {
			return nil, apperr.Validation(msgAccountTaken)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Authenticate 校验邮箱与密码。未知邮箱与密码错误返回同一个 AuthError。
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	var user model.User
	err := a.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Auth(msgLoginFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Auth(msgLoginFailed)
	}
	return &user, nil
}

// Get 按 ID 读取账户。
func (a *Accounts) Get(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := a.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Account not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func exists(q *gorm.DB) (bool, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
