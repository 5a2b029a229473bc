package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"funding-service/internal/config"
	applog "funding-service/pkg/logger"
)

func testGatewayConfig(baseUrl string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseUrl: baseUrl, ApiKey: "k", SecretKey: "s",
		Timeout: 2 * time.Second, MaxRetries: 3,
	}
}

func TestGatewayTokenCached(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/api/v1/auth/login") {
			atomic.AddInt32(&logins, 1)
			fmt.Fprint(w, `{"requestSuccessful":true,"responseBody":{"accessToken":"tok","expiresIn":3600}}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"requestSuccessful":true,"responseBody":{"paymentStatus":"PAID","paymentReference":"DEP-1"}}`)
	}))
	defer srv.Close()

	c := NewGatewayClient(testGatewayConfig(srv.URL), applog.NewNop())
	for i := 0; i < 3; i++ {
		tx, err := c.QueryTransaction(context.Background(), "DEP-1")
		if err != nil {
			t.Fatalf("QueryTransaction failed: %v", err)
		}
		if tx.PaymentStatus != "PAID" {
			t.Errorf("Expected PAID, got %s", tx.PaymentStatus)
		}
	}
	if n := atomic.LoadInt32(&logins); n != 1 {
		t.Errorf("Expected 1 login, got %d", n)
	}
}

func TestGatewayReloginOn401(t *testing.T) {
	var logins, queries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/api/v1/auth/login") {
			n := atomic.AddInt32(&logins, 1)
			fmt.Fprintf(w, `{"requestSuccessful":true,"responseBody":{"accessToken":"tok-%d","expiresIn":3600}}`, n)
			return
		}
		// The first token is treated as stale by the server.
		if atomic.AddInt32(&queries, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"requestSuccessful":true,"responseBody":{"paymentStatus":"PAID"}}`)
	}))
	defer srv.Close()

	c := NewGatewayClient(testGatewayConfig(srv.URL), applog.NewNop())
	tx, err := c.QueryTransaction(context.Background(), "DEP-1")
	if err != nil {
		t.Fatalf("QueryTransaction failed: %v", err)
	}
	if tx.PaymentStatus != "PAID" {
		t.Errorf("Expected PAID after relogin, got %s", tx.PaymentStatus)
	}
	if n := atomic.LoadInt32(&logins); n != 2 {
		t.Errorf("Expected relogin, got %d logins", n)
	}
}

func TestGatewayBoundedRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/api/v1/auth/login") {
			fmt.Fprint(w, `{"requestSuccessful":true,"responseBody":{"accessToken":"tok","expiresIn":3600}}`)
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewGatewayClient(testGatewayConfig(srv.URL), applog.NewNop())
	_, err := c.QueryTransaction(context.Background(), "DEP-1")
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("Expected ErrGatewayUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestGatewayClientErrorNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/api/v1/auth/login") {
			fmt.Fprint(w, `{"requestSuccessful":true,"responseBody":{"accessToken":"tok","expiresIn":3600}}`)
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewGatewayClient(testGatewayConfig(srv.URL), applog.NewNop())
	_, err := c.QueryTransaction(context.Background(), "DEP-1")
	if err == nil {
		t.Fatalf("Expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Client errors must not retry, got %d attempts", n)
	}
}
