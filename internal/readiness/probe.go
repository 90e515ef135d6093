package readiness

import (
	"fmt"
	"net/http"
	"time"
)

const DefaultProbeTimeout = 2 * time.Second

// HTTPProbe issues a bounded-timeout HEAD request against the declared
// address. Any HTTP response, including an error status, counts as
// reachable: dev servers frequently answer 404 on / while compiling.
type HTTPProbe struct {
	Timeout time.Duration
}

func (p HTTPProbe) Reachable(host string, port int) (bool, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := &http.Client{Timeout: timeout}
	url := fmt.Sprintf("http://%s:%d/", host, port)
	resp, err := client.Head(url)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()
	return true, nil
}

func (p HTTPProbe) Describe() string { return "http-probe" }
