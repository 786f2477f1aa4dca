// Package sessionclient 校验登录服签发的会话密钥。
package sessionclient

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/lk2023060901/pangya-game-go/internal/json"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// keyPrefix 为登录服写入会话密钥时使用的前缀。
const keyPrefix = "pangya:session:"

// maxSessionKeyLength 为会话密钥的最大长度。
const maxSessionKeyLength = 64

// SessionInfo 为认证成功后得到的账号信息。
type SessionInfo struct {
	UID      player.UID `json:"uid"`
	Username string     `json:"username"`
	Nickname string     `json:"nickname"`
}

// Authenticator 用会话密钥换取账号信息。
type Authenticator interface {
	Authenticate(ctx context.Context, sessionKey string) (SessionInfo, error)
}

// Client 是基于 Redis 的 Authenticator，每个会话密钥只能使用一次。
type Client struct {
	rdb redis.UniversalClient
}

var _ Authenticator = (*Client)(nil)

func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

func sessionKey(key string) string {
	return keyPrefix + key
}

func validateKey(key string) error {
	if key == "" {
		return merr.WrapErrSessionKeyInvalid("empty")
	}
	if len(key) > maxSessionKeyLength {
		return merr.WrapErrSessionKeyInvalid("too long")
	}
	if strings.ContainsAny(key, ": \t\r\n") {
		return merr.WrapErrSessionKeyInvalid("illegal character")
	}
	return nil
}

// Authenticate 读取并删除会话密钥。
// 密钥不存在或已被使用时返回 merr.ErrAuthFailed。
func (c *Client) Authenticate(ctx context.Context, key string) (SessionInfo, error) {
	if err := validateKey(key); err != nil {
		return SessionInfo{}, merr.WrapErrAsInputError(err)
	}

	raw, err := c.rdb.GetDel(ctx, sessionKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return SessionInfo{}, merr.WrapErrAuthFailed("unknown or expired session key")
	}
	if err != nil {
		return SessionInfo{}, merr.WrapErrIoFailed(sessionKey(key), err)
	}

	var info SessionInfo
	if err := json.UnmarshalFromString(raw, &info); err != nil {
		return SessionInfo{}, merr.WrapErrAuthFailed("malformed session record", err.Error())
	}
	if info.UID == 0 {
		return SessionInfo{}, merr.WrapErrAuthFailed("session record without uid")
	}
	return info, nil
}

// Store 写入一个会话密钥，ttl 为 0 表示不过期。由登录服或测试使用。
func (c *Client) Store(ctx context.Context, key string, info SessionInfo, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	raw, err := json.MarshalToString(info)
	if err != nil {
		return err
	}
	return merr.WrapErrIoFailed(sessionKey(key), c.rdb.Set(ctx, sessionKey(key), raw, ttl).Err())
}
