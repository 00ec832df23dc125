package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/screenshot-api/internal/apierr"
)

func limitedRequest(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/screenshot/status/abc", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_GlobalLimit(t *testing.T) {
	rl := NewRateLimiter(1.0, 2, 10.0, 10)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	if rr := limitedRequest(handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
		t.Errorf("First request failed: got %d", rr.Code)
	}
	if rr := limitedRequest(handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
		t.Errorf("Second request (burst) failed: got %d", rr.Code)
	}

	rr := limitedRequest(handler, "192.168.1.2:1234")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Third request should be rate limited: got %d", rr.Code)
	}
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != apierr.ErrRateLimitGlobal {
		t.Errorf("expected global limit code, got %s", resp.Error.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiter_PerIPLimit(t *testing.T) {
	rl := NewRateLimiter(100.0, 100, 1.0, 2)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	for i, port := range []string{"1234", "5678"} {
		if rr := limitedRequest(handler, "192.168.1.1:"+port); rr.Code != http.StatusOK {
			t.Errorf("request %d from IP1 failed: got %d", i+1, rr.Code)
		}
	}
	rr := limitedRequest(handler, "192.168.1.1:9999")
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Third request from IP1 should be rate limited: got %d", rr.Code)
	}
	if rr := limitedRequest(handler, "192.168.1.2:1234"); rr.Code != http.StatusOK {
		t.Errorf("Request from IP2 failed: got %d", rr.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, "192.168.1.1:1234", "203.0.113.1"},
		{"x-real-ip", map[string]string{"X-Real-IP": "203.0.113.1"}, "192.168.1.1:1234", "203.0.113.1"},
		{"remote addr", nil, "192.168.1.1:1234", "192.168.1.1"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", nil, "192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remote
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(10.0, 10, 10.0, 10)
	defer rl.Stop()

	rl.getLimiter("192.168.1.1")
	rl.getLimiter("192.168.1.2")
	if n := rl.trackedIPs(); n != 2 {
		t.Fatalf("Expected 2 IP limiters, got %d", n)
	}

	rl.evictIdle(time.Now().Add(time.Second))
	if n := rl.trackedIPs(); n != 0 {
		t.Errorf("Expected idle limiters evicted, got %d", n)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(10.0, 10, 10.0, 10)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100.0, 100, 10.0, 10)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				limitedRequest(handler, "192.168.1."+strconv.Itoa(n+1)+":1234")
			}
		}(i)
	}
	wg.Wait()

	if n := rl.trackedIPs(); n != 10 {
		t.Errorf("expected 10 tracked IPs, got %d", n)
	}
}

func TestRateLimiter_AfterWait(t *testing.T) {
	rl := NewRateLimiter(10.0, 1, 10.0, 1)
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	limitedRequest(handler, "192.168.1.1:1234")
	if rr := limitedRequest(handler, "192.168.1.1:1234"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("Request should be rate limited: got %d", rr.Code)
	}

	time.Sleep(150 * time.Millisecond)

	if rr := limitedRequest(handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
		t.Errorf("Request after wait should succeed: got %d", rr.Code)
	}
}
