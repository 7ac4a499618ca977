// Command monitor watches the metrics heartbeats published by running
// QA service instances and prints a live terminal summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

type heartbeat struct {
	Service   string                 `json:"service"`
	Timestamp string                 `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics"`

	lastSeen time.Time
}

type watcher struct {
	mu       sync.Mutex
	services map[string]*heartbeat
}

func (w *watcher) update(hb heartbeat) {
	hb.lastSeen = time.Now()
	w.mu.Lock()
	w.services[hb.Service] = &hb
	w.mu.Unlock()
}

func (w *watcher) snapshot() []*heartbeat {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*heartbeat, 0, len(w.services))
	for _, hb := range w.services {
		out = append(out, hb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

func main() {
	var (
		natsURL = flag.String("nats", nats.DefaultURL, "NATS server URL")
		topic   = flag.String("topic", "qa.metrics", "Metrics heartbeat topic")
		once    = flag.Bool("once", false, "Collect briefly, print once and exit")
	)
	flag.Parse()

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	w := &watcher{services: make(map[string]*heartbeat)}
	if _, err := nc.Subscribe(*topic, func(msg *nats.Msg) {
		var hb heartbeat
		if err := json.Unmarshal(msg.Data, &hb); err != nil {
			log.Printf("Bad heartbeat payload: %v", err)
			return
		}
		w.update(hb)
	}); err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", *topic, err)
	}

	if *once {
		time.Sleep(35 * time.Second)
		render(w.snapshot())
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
			render(w.snapshot())
		}
	}
}

func render(services []*heartbeat) {
	fmt.Print("\033[2J\033[H")
	fmt.Printf("QA Service Monitor - %s\n\n", time.Now().Format("15:04:05"))

	if len(services) == 0 {
		fmt.Println("No heartbeats received yet")
		return
	}

	fmt.Printf("%-15s %-10s %-10s %-10s %-12s %-10s\n",
		"SERVICE", "REQUESTS", "ERRORS", "CACHE_HIT", "UPTIME", "LAST_SEEN")
	for _, hb := range services {
		fmt.Printf("%-15s %-10v %-10v %-9.1f%% %-12s %-10s\n",
			hb.Service,
			hb.Metrics["total_requests"],
			hb.Metrics["error_count"],
			asFloat(hb.Metrics["cache_hit_rate"]),
			formatUptime(asFloat(hb.Metrics["uptime_seconds"])),
			fmt.Sprintf("%ds ago", int(time.Since(hb.lastSeen).Seconds())))
	}
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func formatUptime(secs float64) string {
	d := time.Duration(secs) * time.Second
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
