package syncer

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Connectivity reports whether the remote can be reached right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Switch is a manually controlled Connectivity.
type Switch struct {
	online atomic.Bool
}

func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online.Store(online)
	return s
}

func (s *Switch) Set(online bool) {
	s.online.Store(online)
}

func (s *Switch) Online(context.Context) bool {
	return s.online.Load()
}

const probeTimeout = 3 * time.Second

// Probe checks connectivity with a HEAD request to the remote base URL.
// Any HTTP response counts as online; transport errors count as offline.
type Probe struct {
	url    string
	client *http.Client
}

func NewProbe(url string) *Probe {
	return &Probe{
		url:    url,
		client: &http.Client{Timeout: probeTimeout},
	}
}

func (p *Probe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
