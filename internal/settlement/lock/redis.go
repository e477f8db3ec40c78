package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-wager-engine/internal/settlement"
)

// só apaga a chave se o token ainda for o nosso
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis implementa settlement.Locker com SETNX + TTL e unlock condicional em Lua
type Redis struct {
	rdb    *redis.Client
	script *redis.Script
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, script: redis.NewScript(unlockLua)}
}

var _ settlement.Locker = (*Redis)(nil)

func key(k string) string { return "lock:" + k }

// Acquire devolve settlement.ErrLockHeld se outra instância segura a chave.
// A função de release pode ser chamada mais de uma vez.
func (l *Redis) Acquire(ctx context.Context, k string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key(k), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", k, err)
	}
	if !ok {
		return nil, settlement.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// contexto próprio: o do chamador pode já ter sido cancelado
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.script.Run(ctx, l.rdb, []string{key(k)}, token).Err()
	}, nil
}
