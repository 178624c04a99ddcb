package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sponge-dev/AIStoryBot/internal/config"
)

// HealthService answers health probes over NATS and publishes periodic
// heartbeats carrying the upstream status and model catalog.
type HealthService struct {
	nats   *nats.Conn
	status *StatusService
	config *config.Config
}

type HealthStatus struct {
	Service         string    `json:"service"`
	Status          string    `json:"status"` // online, degraded
	OllamaRunning   bool      `json:"ollama_running"`
	AvailableModels []string  `json:"available_models"`
	LastActivity    time.Time `json:"last_activity"`
	Endpoint        string    `json:"endpoint"`
	NATSTopic       string    `json:"nats_topic"`
	Version         string    `json:"version"`
}

func NewHealthService(natsConn *nats.Conn, status *StatusService, cfg *config.Config) *HealthService {
	return &HealthService{
		nats:   natsConn,
		status: status,
		config: cfg,
	}
}

func (h *HealthService) Start(ctx context.Context) error {
	healthTopic := fmt.Sprintf("storybot.%s.health", h.config.Durable)

	_, err := h.nats.Subscribe(healthTopic, func(msg *nats.Msg) {
		statusData, err := json.Marshal(h.getHealthStatus(ctx))
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}
		if err := msg.Respond(statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", healthTopic)

	go h.publishHeartbeats(ctx)
	return nil
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	heartbeatTopic := fmt.Sprintf("storybot.%s.heartbeat", h.config.Durable)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statusData, err := json.Marshal(h.getHealthStatus(ctx))
			if err != nil {
				continue
			}
			if err := h.nats.Publish(heartbeatTopic, statusData); err != nil {
				slog.Warn("Failed to publish heartbeat", "error", err)
			}
		}
	}
}

func (h *HealthService) getHealthStatus(ctx context.Context) HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.config.StatusTimeout)
	defer cancel()
	upstream := h.status.Check(checkCtx)

	status := "online"
	if !upstream.OllamaRunning {
		status = "degraded"
	}

	return HealthStatus{
		Service:         h.config.Durable,
		Status:          status,
		OllamaRunning:   upstream.OllamaRunning,
		AvailableModels: upstream.AvailableModels,
		LastActivity:    time.Now(),
		Endpoint:        fmt.Sprintf("http://localhost%s", h.config.HTTPAddr),
		NATSTopic:       h.config.Subject,
		Version:         "1.0.0",
	}
}
