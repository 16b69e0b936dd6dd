package leads

import (
	"context"
	"strings"
	"time"

	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// DedupLock serializes form submissions per dealership and customer email so
// the duplicate check and the insert are not interleaved. It is best effort:
// when Redis is unreachable or the wait expires the caller proceeds unlocked.
type DedupLock struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	log    *logger.Logger
}

func NewDedupLock(client *redis.Client, log *logger.Logger) *DedupLock {
	return &DedupLock{
		client: client,
		ttl:    10 * time.Second,
		wait:   3 * time.Second,
		poll:   50 * time.Millisecond,
		log:    log,
	}
}

// Acquire blocks until the lock for tenantID and email is held or the wait
// expires. The returned release func is always safe to call.
func (l *DedupLock) Acquire(ctx context.Context, tenantID uuid.UUID, email string) func() {
	noop := func() {}
	if l == nil || l.client == nil {
		return noop
	}

	key := lockKey(tenantID, email)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.log.Warn("dedup lock unavailable, continuing unlocked", "error", err)
			return noop
		}
		if ok {
			return func() {
				if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); err != nil {
					l.log.Warn("dedup lock release failed", "error", err)
				}
			}
		}
		if time.Now().After(deadline) {
			l.log.Warn("dedup lock wait expired, continuing unlocked", "tenant_id", tenantID)
			return noop
		}

		select {
		case <-ctx.Done():
			return noop
		case <-time.After(l.poll):
		}
	}
}

func lockKey(tenantID uuid.UUID, email string) string {
	return "intake:dedup:" + tenantID.String() + ":" + strings.ToLower(strings.TrimSpace(email))
}
