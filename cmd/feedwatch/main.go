// Command feedwatch opens many live-feed websocket connections and tallies the
// events they receive. It is a load and smoke tool for /api/ws/feed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Metrics tracks connection outcomes across all clients.
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	PingsSent            int64
	Errors               int64

	mu     sync.Mutex
	events map[string]int64
}

func (m *Metrics) countEvent(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string]int64)
	}
	m.events[kind]++
}

var metrics Metrics

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	token := flag.String("token", "", "Bearer token; when empty one is signed with -secret")
	secret := flag.String("secret", "", "JWT secret used to sign per-client tokens (dev only)")
	issuer := flag.String("issuer", "", "JWT issuer claim")
	audience := flag.String("audience", "", "JWT audience claim")
	clients := flag.Int("clients", 20, "Number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	if *token == "" && *secret == "" {
		log.Fatal("either -token or -secret is required")
	}

	log.Printf("Watching ws://%s/api/ws/feed with %d clients for %v", *host, *clients, *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < *clients; i++ {
		tok := *token
		if tok == "" {
			var err error
			tok, err = signToken(*secret, *issuer, *audience, i)
			if err != nil {
				log.Fatalf("sign token: %v", err)
			}
		}
		wg.Add(1)
		go runClient(*host, tok, stop, &wg)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-time.After(*duration):
		log.Println("Test duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stop)
	wg.Wait()
	printMetrics()
}

func signToken(secret, issuer, audience string, n int) (string, error) {
	claims := jwt.MapClaims{
		"sub":   fmt.Sprintf("feedwatch-%d", n),
		"email": fmt.Sprintf("feedwatch-%d@example.com", n),
		"name":  fmt.Sprintf("Watcher %d", n),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func runClient(host, token string, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws/feed", RawQuery: "token=" + url.QueryEscape(token)}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	defer func() { _ = c.Close() }()
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	go func() {
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(raw, &frame) != nil || frame.Type == "" {
				frame.Type = "unknown"
			}
			metrics.countEvent(frame.Type)
		}
	}()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				return
			}
			atomic.AddInt64(&metrics.PingsSent, 1)
		}
	}
}

func printMetrics() {
	log.Println("Results")
	log.Printf("Connections attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Pings sent: %d", atomic.LoadInt64(&metrics.PingsSent))
	log.Printf("Errors: %d", atomic.LoadInt64(&metrics.Errors))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	kinds := make([]string, 0, len(metrics.events))
	for k := range metrics.events {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		log.Printf("  %-24s %d", k, metrics.events[k])
	}
}
