// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepTick = 5 * time.Minute
)

type RateLimitResult struct {
	Allowed     bool
	WaitSeconds int
}

type RateLimiter interface {
	Allow(ip string) RateLimitResult
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter gives each client IP a token bucket refilled at
// perMinute tokens a minute, with a burst of perMinute.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*ipLimiter
	now      func() time.Time
	stop     chan struct{}
}

func NewTokenBucketLimiter(perMinute int) *TokenBucketLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	l := &TokenBucketLimiter{
		perMin:   perMinute,
		limiters: make(map[string]*ipLimiter),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *TokenBucketLimiter) Close() {
	close(l.stop)
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterSweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-limiterIdleTTL)
			for ip, e := range l.limiters {
				if e.lastSeen.Before(cutoff) {
					delete(l.limiters, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *TokenBucketLimiter) Allow(ip string) RateLimitResult {
	l.mu.Lock()
	now := l.now()
	e, ok := l.limiters[ip]
	if !ok {
		e = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(float64(l.perMin)/60), l.perMin)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return RateLimitResult{Allowed: true}
	}
	r.CancelAt(now)
	return RateLimitResult{Allowed: false, WaitSeconds: int(math.Ceil(delay.Seconds()))}
}

func RateLimit(limiter RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		result := limiter.Allow(clientIP)
		if !result.Allowed {
			traceID, _ := c.Get("trace_id")
			logger.Info("Rate limit triggered",
				"trace_id", traceID,
				"ip", clientIP,
				"wait_seconds", result.WaitSeconds,
			)
			c.Header("Retry-After", strconv.Itoa(result.WaitSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":        fmt.Sprintf("Rate limit reached. Please wait %d seconds before trying again.", result.WaitSeconds),
				"wait_seconds": result.WaitSeconds,
			})
			return
		}

		c.Next()
	}
}
