package syncer

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Probe checks whether the remote backend is reachable.
type Probe interface {
	Online(ctx context.Context) bool
}

// DialProbe checks reachability with a TCP dial of the backend host. The
// result is cached briefly so back-to-back saves don't each pay a dial.
type DialProbe struct {
	addr    string
	ttl     time.Duration
	timeout time.Duration

	mu      sync.Mutex
	checked time.Time
	ok      bool
}

// NewDialProbe creates a probe for the given backend URL, e.g.
// "libsql://markbook-user.turso.io". A URL without a port probes 443.
func NewDialProbe(rawURL string) *DialProbe {
	addr := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		addr = u.Host
	}
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}
	return &DialProbe{
		addr:    addr,
		ttl:     10 * time.Second,
		timeout: 3 * time.Second,
	}
}

// Online implements Probe.
func (p *DialProbe) Online(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checked) < p.ttl {
		return p.ok
	}

	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err == nil {
		conn.Close()
	}
	p.ok = err == nil
	p.checked = time.Now()
	return p.ok
}
