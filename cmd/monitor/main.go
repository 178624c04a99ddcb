package main

import (
	"context"
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

// serviceStatus tracks one story service instance from its heartbeats and
// backpressure reports.
type serviceStatus struct {
	Service         string    `json:"service"`
	Status          string    `json:"status"`
	OllamaRunning   bool      `json:"ollama_running"`
	AvailableModels []string  `json:"available_models"`
	LastSeen        time.Time `json:"last_seen"`
	FirstSeen       time.Time `json:"first_seen"`

	Pending int64  `json:"pending_messages"`
	Active  int64  `json:"active_generations"`
	Load    string `json:"load"`
}

type heartbeat struct {
	Service         string   `json:"service"`
	Status          string   `json:"status"`
	OllamaRunning   bool     `json:"ollama_running"`
	AvailableModels []string `json:"available_models"`
}

type backpressureReport struct {
	Service           string `json:"service"`
	PendingMessages   int64  `json:"pending_messages"`
	ActiveGenerations int64  `json:"active_generations"`
	Status            string `json:"status"`
}

type monitor struct {
	nats     *nats.Conn
	mu       sync.RWMutex
	services map[string]*serviceStatus
}

func newMonitor(natsURL string) (*monitor, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &monitor{
		nats:     nc,
		services: make(map[string]*serviceStatus),
	}, nil
}

func (m *monitor) start(ctx context.Context, monitoringTopic string) error {
	_, err := m.nats.Subscribe("storybot.*.heartbeat", func(msg *nats.Msg) {
		var hb heartbeat
		if err := json.Unmarshal(msg.Data, &hb); err != nil {
			log.Printf("Failed to parse heartbeat from %s: %v", msg.Subject, err)
			return
		}
		m.update(hb.Service, func(s *serviceStatus) {
			s.Status = hb.Status
			s.OllamaRunning = hb.OllamaRunning
			s.AvailableModels = hb.AvailableModels
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to heartbeats: %w", err)
	}

	_, err = m.nats.Subscribe(monitoringTopic+".*", func(msg *nats.Msg) {
		var report backpressureReport
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			log.Printf("Failed to parse backpressure report from %s: %v", msg.Subject, err)
			return
		}
		m.update(report.Service, func(s *serviceStatus) {
			s.Pending = report.PendingMessages
			s.Active = report.ActiveGenerations
			s.Load = report.Status
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to monitoring topic: %w", err)
	}

	log.Println("Monitor started, listening for story service heartbeats...")

	go m.cleanupStale(ctx)
	return nil
}

func (m *monitor) update(service string, apply func(*serviceStatus)) {
	if service == "" {
		return
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.services[service]
	if !ok {
		s = &serviceStatus{Service: service, FirstSeen: now}
		m.services[service] = s
	}
	s.LastSeen = now
	apply(s)
}

func (m *monitor) cleanupStale(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			for name, s := range m.services {
				if time.Since(s.LastSeen) > 2*time.Minute {
					log.Printf("Service went stale: %s (last seen %v ago)", name, time.Since(s.LastSeen).Truncate(time.Second))
					delete(m.services, name)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *monitor) printTable(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			names := make([]string, 0, len(m.services))
			for name := range m.services {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Printf("\n%-20s %-10s %-8s %-8s %-8s %-10s %s\n",
				"SERVICE", "STATUS", "OLLAMA", "PENDING", "ACTIVE", "LOAD", "UPTIME")
			for _, name := range names {
				s := m.services[name]
				ollamaState := "down"
				if s.OllamaRunning {
					ollamaState = "up"
				}
				fmt.Printf("%-20s %-10s %-8s %-8d %-8d %-10s %v\n",
					s.Service, s.Status, ollamaState, s.Pending, s.Active, s.Load,
					time.Since(s.FirstSeen).Truncate(time.Second))
			}
			m.mu.RUnlock()
		}
	}
}

func main() {
	var (
		natsURL         = flag.String("nats", nats.DefaultURL, "NATS server URL")
		monitoringTopic = flag.String("topic", "storybot.monitoring", "Backpressure monitoring topic prefix")
		interval        = flag.Duration("interval", 10*time.Second, "Status table refresh interval")
	)
	flag.Parse()

	m, err := newMonitor(*natsURL)
	if err != nil {
		log.Fatalf("Failed to start monitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.start(ctx, *monitoringTopic); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	go m.printTable(ctx, *interval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Monitor shutting down")
}
