package readiness

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestHTTPProbeReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	p := HTTPProbe{Timeout: time.Second}
	ok, err := p.Reachable(host, port)
	if err != nil {
		t.Fatalf("Reachable: %v", err)
	}
	if !ok {
		t.Fatal("expected reachable")
	}
}

func TestHTTPProbeAnyStatusCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	ok, err := (HTTPProbe{Timeout: time.Second}).Reachable(host, port)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want reachable on any HTTP response", ok, err)
	}
}

func TestHTTPProbeUnreachable(t *testing.T) {
	// Grab a free port and close it again so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	ok, _ := (HTTPProbe{Timeout: 500 * time.Millisecond}).Reachable("127.0.0.1", port)
	if ok {
		t.Fatal("expected unreachable")
	}
}
