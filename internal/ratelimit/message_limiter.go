package ratelimit

import (
	"sync"
	"time"
)

// One message costs 1e9 nano-tokens. Keeping the bookkeeping in fixed-point
// nano-tokens means a rate of N messages/sec refills N nano-tokens per
// elapsed nanosecond, with no float rounding.
const nanoTokensPerMessage = int64(time.Second)

// MessageLimiter is a token bucket charging one token per signaling frame,
// refilled at an integer rate (messages/sec) read from a provided Clock.
type MessageLimiter struct {
	mu sync.Mutex

	clock Clock
	rate  int64 // messages/sec, also the burst capacity

	availableNanoTokens int64
	last                time.Time
}

// NewMessageLimiter returns a limiter admitting bursts of up to perSecond
// messages and refilling at perSecond messages/sec. perSecond <= 0 disables
// the limiter.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	rate := int64(perSecond)
	if rate < 0 {
		rate = 0
	}
	return &MessageLimiter{
		clock:               clock,
		rate:                rate,
		availableNanoTokens: rate * nanoTokensPerMessage,
		last:                clock.Now(),
	}
}

// Allow charges one message against the bucket.
func (l *MessageLimiter) Allow() bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()

	if l.availableNanoTokens < nanoTokensPerMessage {
		return false
	}
	l.availableNanoTokens -= nanoTokensPerMessage
	return true
}

func (l *MessageLimiter) refillLocked() {
	now := l.clock.Now()
	if now.Before(l.last) {
		// Time went backwards. Move the reference point without refilling.
		l.last = now
		return
	}

	elapsed := now.Sub(l.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	l.last = now

	capacityNano := l.rate * nanoTokensPerMessage
	need := capacityNano - l.availableNanoTokens
	if need <= 0 {
		l.availableNanoTokens = capacityNano
		return
	}

	// elapsed*rate can overflow after a long idle stretch; if the elapsed
	// time is enough to fill the bucket, clamp to capacity instead.
	if elapsed >= need/l.rate {
		l.availableNanoTokens = capacityNano
		return
	}
	l.availableNanoTokens += elapsed * l.rate
}
