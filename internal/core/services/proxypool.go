package services

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/banwatch/backend/internal/domain"
	"github.com/banwatch/backend/internal/infrastructure/logger"
)

// ProxyRecord tracks one proxy endpoint's health and usage counters. All
// fields are guarded by the owning pool's mutex.
type ProxyRecord struct {
	URI                 string
	ConsecutiveFailures int
	Disabled            bool
	DisabledUntil       time.Time
	LastUsedAt          time.Time

	Attempts     uint64
	Successes    uint64
	Failures     uint64
	TotalLatency time.Duration

	client *http.Client
}

type ProxyPoolConfig struct {
	// ProxyList is a newline-delimited list of proxy URIs. Malformed entries
	// are dropped individually.
	ProxyList        string
	FailureThreshold int
	Cooldown         time.Duration
	RequestTimeout   time.Duration
	// RequireProxies forbids the direct-connection fallback; an empty pool
	// then fails the submission.
	RequireProxies bool
	Logger         *logger.Logger
}

// ProxyPool owns proxy selection and health tracking for one task. Selection
// is round-robin over enabled proxies; a proxy is taken out of rotation after
// FailureThreshold consecutive failures and comes back after Cooldown.
type ProxyPool struct {
	mu             sync.Mutex
	proxies        []*ProxyRecord
	next           int
	threshold      int
	cooldown       time.Duration
	direct         *http.Client
	requireProxies bool
	log            *logger.Logger
}

func NewProxyPool(cfg ProxyPoolConfig) (*ProxyPool, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	pool := &ProxyPool{
		threshold:      cfg.FailureThreshold,
		cooldown:       cfg.Cooldown,
		requireProxies: cfg.RequireProxies,
		direct:         &http.Client{Timeout: cfg.RequestTimeout},
		log:            log,
	}

	for _, line := range strings.Split(cfg.ProxyList, "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			log.Warnw("proxy_pool_entry_dropped", "uri", raw, "error", err)
			continue
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			log.Warnw("proxy_pool_entry_dropped", "uri", raw, "reason", "unsupported scheme")
			continue
		}
		proxyURL := u
		pool.proxies = append(pool.proxies, &ProxyRecord{
			URI: raw,
			client: &http.Client{
				Timeout: cfg.RequestTimeout,
				Transport: &http.Transport{
					Proxy: http.ProxyURL(proxyURL),
				},
			},
		})
	}

	if len(pool.proxies) == 0 && cfg.RequireProxies {
		return nil, ErrProxiesRequired
	}

	log.Infow("proxy_pool_ready", "proxies", len(pool.proxies), "require_proxies", cfg.RequireProxies)
	return pool, nil
}

// Next selects the next enabled proxy round-robin. A nil record with a
// non-nil client means a direct connection. ErrNoUsableProxy is returned only
// when every proxy is disabled and direct connections are disallowed.
func (p *ProxyPool) Next() (*ProxyRecord, *http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		if p.requireProxies {
			return nil, nil, ErrNoUsableProxy
		}
		return nil, p.direct, nil
	}

	now := time.Now()
	for i := 0; i < len(p.proxies); i++ {
		rec := p.proxies[p.next%len(p.proxies)]
		p.next++
		if rec.Disabled {
			if now.Before(rec.DisabledUntil) {
				continue
			}
			// cooldown elapsed, give it another chance
			rec.Disabled = false
			rec.ConsecutiveFailures = 0
		}
		rec.LastUsedAt = now
		rec.Attempts++
		return rec, rec.client, nil
	}

	if p.requireProxies {
		return nil, nil, ErrNoUsableProxy
	}
	return nil, p.direct, nil
}

// ReportSuccess records a successful call through rec. Safe to call with a
// nil record (direct connection).
func (p *ProxyPool) ReportSuccess(rec *ProxyRecord, latency time.Duration) {
	if rec == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rec.ConsecutiveFailures = 0
	rec.Successes++
	rec.TotalLatency += latency
}

// ReportFailure records a failed call through rec and disables the proxy once
// it crosses the consecutive-failure threshold.
func (p *ProxyPool) ReportFailure(rec *ProxyRecord) {
	if rec == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rec.Failures++
	rec.ConsecutiveFailures++
	if rec.ConsecutiveFailures >= p.threshold && !rec.Disabled {
		rec.Disabled = true
		rec.DisabledUntil = time.Now().Add(p.cooldown)
		p.log.Warnw("proxy_pool_proxy_disabled", "uri", rec.URI, "failures", rec.ConsecutiveFailures, "until", rec.DisabledUntil)
	}
}

// Size reports the number of parsed proxies.
func (p *ProxyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// EnabledCount reports proxies currently in rotation.
func (p *ProxyPool) EnabledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	n := 0
	for _, rec := range p.proxies {
		if !rec.Disabled || !now.Before(rec.DisabledUntil) {
			n++
		}
	}
	return n
}

// Snapshot returns per-proxy counters for surfacing on the task record.
func (p *ProxyPool) Snapshot() domain.JSONB {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}
	stats := make(domain.JSONB, len(p.proxies))
	for _, rec := range p.proxies {
		entry := map[string]interface{}{
			"attempts":  rec.Attempts,
			"successes": rec.Successes,
			"failures":  rec.Failures,
			"disabled":  rec.Disabled,
		}
		if rec.Successes > 0 {
			entry["avg_latency_ms"] = (rec.TotalLatency / time.Duration(rec.Successes)).Milliseconds()
		}
		stats[rec.URI] = entry
	}
	return stats
}
