package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// ChatLimiter rate-limits sends per destination chat. Telegram throttles
// around one message per second per chat.
type ChatLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

func NewChatLimiter(msgPerSec float64, burst int) *ChatLimiter {
	return &ChatLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(msgPerSec),
		b: burst,
	}
}

func (cl *ChatLimiter) limiterFor(dest string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if lim, ok := cl.m[dest]; ok {
		return lim
	}
	lim := rate.NewLimiter(cl.r, cl.b)
	cl.m[dest] = lim
	return lim
}

func (cl *ChatLimiter) Wait(ctx context.Context, dest string) error {
	return cl.limiterFor(dest).Wait(ctx)
}
