// Package session 负责登录会话：签发 JWT，并在 Redis 中保存可撤销的会话记录。
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tasknotes/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "tasknotes:session:"
	defaultTTL = 24 * time.Hour
)

var errInvalidSession = apperr.Auth("login required")

// Identity is the authenticated caller passed into every ledger call.
type Identity struct {
	UserID    uint
	SessionID string
}

// Session is a freshly created login session.
type Session struct {
	Identity
	Token     string
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

// Store 管理会话的创建、解析、续期与撤销。
type Store struct {
	rdb    *redis.Client
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStore 创建会话存储。ttl <= 0 时使用 24h。
func NewStore(rdb *redis.Client, secret string, ttl time.Duration) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create 为 userID 开启新会话。
//
// 参数:
//
//	userID: 已通过认证的账户 ID
//
// 返回值:
//
//	*Session: 包含签名令牌与过期时间
//	error: Redis 写入或签名失败
func (s *Store) Create(ctx context.Context, userID uint) (*Session, error) {
	id := uuid.NewString()
	now := s.now()
	exp := now.Add(s.ttl)

	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        id,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+id, c.Subject, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &Session{
		Identity:  Identity{UserID: userID, SessionID: id},
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

// Resolve 校验令牌签名与有效期，并要求 Redis 中的会话记录仍然存在且属于同一用户。
func (s *Store) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errInvalidSession
	}
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || c.ID == "" || c.Subject == "" {
		return Identity{}, errInvalidSession
	}
	uid, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, errInvalidSession
	}

	stored, err := s.rdb.Get(ctx, keyPrefix+c.ID).Result()
	if errors.Is(err, redis.Nil) {
		return Identity{}, errInvalidSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load session: %w", err)
	}
	if stored != c.Subject {
		return Identity{}, errInvalidSession
	}
	return Identity{UserID: uint(uid), SessionID: c.ID}, nil
}

// Touch 刷新会话记录的 TTL。记录不存在时不做任何事。
func (s *Store) Touch(ctx context.Context, id Identity) error {
	if id.SessionID == "" {
		return nil
	}
	if err := s.rdb.Expire(ctx, keyPrefix+id.SessionID, s.ttl).Err(); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke 删除会话记录，之后同一令牌无法再通过 Resolve。
func (s *Store) Revoke(ctx context.Context, id Identity) error {
	if id.SessionID == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, keyPrefix+id.SessionID).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
