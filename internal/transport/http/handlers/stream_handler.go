package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/domain"
	"github.com/banwatch/backend/internal/infrastructure/logger"
	"github.com/banwatch/backend/internal/transport/http/dto"
	"github.com/banwatch/backend/internal/transport/http/middleware"
)

// StreamHandler pushes task snapshots over a websocket so the UI doesn't have
// to poll while a check is running. The connection closes itself once the
// task reaches a terminal state.
type StreamHandler struct {
	service ports.CheckService
	logger  *logger.Logger
}

func NewStreamHandler(service ports.CheckService, logger *logger.Logger) *StreamHandler {
	return &StreamHandler{service: service, logger: logger}
}

func (h *StreamHandler) Handle(c *websocket.Conn) {
	taskID := c.Params("id")
	owner, _ := c.Locals(middleware.OwnerIDKey).(string)

	defer c.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastProgress float64 = -1
	var lastStatus domain.TaskStatus

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		task, err := h.service.GetTask(ctx, owner, taskID)
		cancel()
		if err != nil {
			h.logger.Warnw("stream_task_lookup_failed", "task_id", taskID, "error", err)
			c.WriteJSON(dto.ErrorResponse{Error: "task not found"})
			return
		}

		if task.Progress != lastProgress || task.Status != lastStatus {
			lastProgress = task.Progress
			lastStatus = task.Status
			if err := c.WriteJSON(dto.TaskToResponse(task)); err != nil {
				return
			}
		}

		if task.Status.Terminal() {
			return
		}

		<-ticker.C
	}
}
