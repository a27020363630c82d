// Command stream-load holds many notification streams open and counts the
// notifications they receive. It exits non-zero when nothing arrives or more
// than one percent of connection attempts fail.
package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type settings struct {
	URL         string
	Connections int
	Duration    time.Duration
	Bearer      string
	Silence     time.Duration
}

func loadSettings() settings {
	v := viper.New()
	v.SetDefault("STREAM_URL", "http://localhost:8080/stream")
	v.SetDefault("STREAM_CONNECTIONS", 200)
	v.SetDefault("STREAM_DURATION", 2*time.Minute)
	v.SetDefault("STREAM_SILENCE_LIMIT", time.Minute)
	v.AutomaticEnv()
	return settings{
		URL:         v.GetString("STREAM_URL"),
		Connections: v.GetInt("STREAM_CONNECTIONS"),
		Duration:    v.GetDuration("STREAM_DURATION"),
		Bearer:      v.GetString("TEST_BEARER"),
		Silence:     v.GetDuration("STREAM_SILENCE_LIMIT"),
	}
}

type counters struct {
	attempts  atomic.Uint64
	failures  atomic.Uint64
	events    atomic.Uint64
	malformed atomic.Uint64
}

func main() {
	s := loadSettings()
	ctx, cancel := context.WithTimeout(context.Background(), s.Duration)
	defer cancel()

	var c counters
	client := &http.Client{}
	var wg sync.WaitGroup
	for range s.Connections {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hold(ctx, client, s, &c)
		}()
	}

	go func() {
		select {
		case <-time.After(s.Silence):
			if c.events.Load() == 0 {
				log.Errorf("no notifications received in %s", s.Silence)
				os.Exit(1)
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	attempts, failures, events := c.attempts.Load(), c.failures.Load(), c.events.Load()
	failureRate := 0.0
	if attempts > 0 {
		failureRate = float64(failures) / float64(attempts)
	}
	log.WithFields(log.Fields{
		"connections": s.Connections,
		"duration":    s.Duration.String(),
		"received":    events,
		"malformed":   c.malformed.Load(),
		"failures":    failures,
	}).Info("stream load finished")
	if events == 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}

// hold keeps one stream open until ctx ends, reconnecting with backoff.
func hold(ctx context.Context, client *http.Client, s settings, c *counters) {
	backoff := time.Second
	fail := func() {
		c.failures.Add(1)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		backoff = min(backoff*2, 5*time.Second)
	}
	for ctx.Err() == nil {
		c.attempts.Add(1)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
		if err != nil {
			fail()
			continue
		}
		if s.Bearer != "" {
			req.Header.Set("Authorization", "Bearer "+s.Bearer)
		}
		resp, err := client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			fail()
			continue
		}
		backoff = time.Second
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if frame, ok := strings.CutPrefix(scanner.Text(), "data:"); ok {
				if validFrame(frame) {
					c.events.Add(1)
				} else {
					c.malformed.Add(1)
				}
			}
		}
		resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		fail()
	}
}

// validFrame reports whether an SSE data payload is a notification object.
func validFrame(data string) bool {
	var n struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := sonic.UnmarshalString(strings.TrimSpace(data), &n); err != nil {
		return false
	}
	return n.ID != "" && n.Type != ""
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
