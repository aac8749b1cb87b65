package poolmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Task type names for the asynq queue: one constant string per task kind, a
// typed payload struct per task, and a worker method per kind — enqueue
// returns immediately, the worker performs the actual (potentially slow)
// supervisor I/O.
const (
	TaskBotStart       = "bot:start"
	TaskBotRestart     = "bot:restart"
	TaskBotReconfigure = "bot:reconfigure"
)

type StartPayload struct {
	InstanceID string    `json:"instanceId"`
	Config     BotConfig `json:"config"`
}

type RestartPayload struct {
	InstanceID string `json:"instanceId"`
}

type ReconfigurePayload struct {
	InstanceID string `json:"instanceId"`
	Strategy   string `json:"strategy"`
}

// Enqueuer offers PoolManager.start()-style callers a non-blocking front
// door: it persists the intent to asynq's Redis-backed queue and returns,
// rather than doing the work inline.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueStart(ctx context.Context, instanceID string, cfg BotConfig) error {
	payload, err := json.Marshal(StartPayload{InstanceID: instanceID, Config: cfg})
	if err != nil {
		return fmt.Errorf("marshal start payload: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TaskBotStart, payload))
	return err
}

func (e *Enqueuer) EnqueueRestart(ctx context.Context, instanceID string) error {
	payload, err := json.Marshal(RestartPayload{InstanceID: instanceID})
	if err != nil {
		return fmt.Errorf("marshal restart payload: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TaskBotRestart, payload))
	return err
}

func (e *Enqueuer) EnqueueReconfigure(ctx context.Context, instanceID, strategy string) error {
	payload, err := json.Marshal(ReconfigurePayload{InstanceID: instanceID, Strategy: strategy})
	if err != nil {
		return fmt.Errorf("marshal reconfigure payload: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TaskBotReconfigure, payload))
	return err
}

// Worker processes the bot:* task queue against a Manager. Registered on an
// asynq.ServeMux in internal/server, one HandleX method per task type.
type Worker struct {
	manager *Manager
	logger  *slog.Logger
}

func NewWorker(manager *Manager, logger *slog.Logger) *Worker {
	return &Worker{manager: manager, logger: logger}
}

func (w *Worker) HandleBotStart(ctx context.Context, t *asynq.Task) error {
	var p StartPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal start payload: %w", err)
	}
	if err := w.manager.Start(ctx, p.InstanceID, p.Config); err != nil {
		w.logger.Error("bot start task failed", "instance_id", p.InstanceID, "error", err)
		return err
	}
	return nil
}

func (w *Worker) HandleBotRestart(ctx context.Context, t *asynq.Task) error {
	var p RestartPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal restart payload: %w", err)
	}
	if err := w.manager.Restart(ctx, p.InstanceID); err != nil {
		w.logger.Error("bot restart task failed", "instance_id", p.InstanceID, "error", err)
		return err
	}
	return nil
}

func (w *Worker) HandleBotReconfigure(ctx context.Context, t *asynq.Task) error {
	var p ReconfigurePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal reconfigure payload: %w", err)
	}
	if err := w.manager.UpdateStrategy(ctx, p.InstanceID, p.Strategy); err != nil {
		w.logger.Error("bot reconfigure task failed", "instance_id", p.InstanceID, "error", err)
		return err
	}
	return nil
}

// RegisterHandlers wires the Worker's methods onto an asynq.ServeMux.
func RegisterHandlers(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(TaskBotStart, w.HandleBotStart)
	mux.HandleFunc(TaskBotRestart, w.HandleBotRestart)
	mux.HandleFunc(TaskBotReconfigure, w.HandleBotReconfigure)
}
