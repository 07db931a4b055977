package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/core/services"
	"github.com/banwatch/backend/internal/infrastructure/logger"
	"github.com/banwatch/backend/internal/transport/http/dto"
	"github.com/banwatch/backend/internal/transport/http/middleware"
)

type CheckHandler struct {
	service ports.CheckService
	logger  *logger.Logger
}

func NewCheckHandler(service ports.CheckService, logger *logger.Logger) *CheckHandler {
	return &CheckHandler{service: service, logger: logger}
}

func (h *CheckHandler) SubmitChecks(c *fiber.Ctx) error {
	var req dto.SubmitCheckRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("check_submit_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("check_submit_validation_failed", "details", errs)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	owner := middleware.OwnerFromContext(c)
	h.logger.Infow("check_submit_request", "owner_id", owner, "identifiers", len(req.SteamIDs))

	task, err := h.service.Submit(c.Context(), ports.SubmitInput{
		OwnerID:  owner,
		SteamIDs: req.SteamIDs,
		Options:  req.Options.ToOptions(),
	})
	if err != nil {
		return h.submitError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task))
}

func (h *CheckHandler) SubmitChecksFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Warnw("check_submit_file_missing", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "file is required",
		})
	}

	idColumn := c.FormValue("id_column")
	if idColumn == "" {
		idColumn = "steam_id"
	}

	var opts *dto.OptionsPayload
	if raw := c.FormValue("options"); raw != "" {
		opts = &dto.OptionsPayload{}
		if err := c.App().Config().JSONDecoder([]byte(raw), opts); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
				Error: "invalid options payload",
			})
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Errorw("check_submit_file_open_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "could not read uploaded file",
		})
	}
	defer file.Close()

	owner := middleware.OwnerFromContext(c)
	h.logger.Infow("check_submit_file_request", "owner_id", owner, "file", fileHeader.Filename, "id_column", idColumn)

	task, err := h.service.SubmitFile(c.Context(), ports.SubmitFileInput{
		OwnerID:  owner,
		File:     file,
		IDColumn: idColumn,
		Options:  opts.ToOptions(),
	})
	if err != nil {
		return h.submitError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task))
}

func (h *CheckHandler) GetCheck(c *fiber.Ctx) error {
	taskID := c.Params("id")
	owner := middleware.OwnerFromContext(c)

	task, err := h.service.GetTask(c.Context(), owner, taskID)
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		h.logger.Errorw("check_get_failed", "task_id", taskID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.TaskToResponse(task))
}

func (h *CheckHandler) ListChecks(c *fiber.Ctx) error {
	owner := middleware.OwnerFromContext(c)
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	tasks, err := h.service.ListTasks(c.Context(), owner, limit)
	if err != nil {
		h.logger.Errorw("check_list_failed", "owner_id", owner, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.TasksToResponse(tasks))
}

func (h *CheckHandler) submitError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrCSVColumnNotFound),
		errors.Is(err, services.ErrCSVEmpty),
		errors.Is(err, services.ErrTooManyIdentifiers),
		errors.Is(err, services.ErrProxiesRequired),
		errors.Is(err, services.ErrTaskInvalidInput):
		h.logger.Warnw("check_submit_rejected", "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	default:
		h.logger.Errorw("check_submit_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
}
