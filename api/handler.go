package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"forumai/config"
	"forumai/models"
	"forumai/repository"
	"forumai/services"
	"forumai/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// APIHandler holds all dependencies for the AJAX dispatcher.
type APIHandler struct {
	taskRepo  repository.TaskRepository
	adminLogs repository.AdminLogRepository
	scheduler services.SchedulerService
	executor  services.ExecutorService
	chat      services.ChatService
}

// NewAPIHandler creates a new APIHandler with necessary dependencies.
func NewAPIHandler(
	taskRepo repository.TaskRepository,
	adminLogs repository.AdminLogRepository,
	scheduler services.SchedulerService,
	executor services.ExecutorService,
	chat services.ChatService,
) *APIHandler {
	return &APIHandler{
		taskRepo:  taskRepo,
		adminLogs: adminLogs,
		scheduler: scheduler,
		executor:  executor,
		chat:      chat,
	}
}

// action handler table. Every admin action is a POST to the single
// dispatcher endpoint keyed by the action string.
func (h *APIHandler) actions() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		"wpforo_ai_save_task":        h.SaveTaskHandler,
		"wpforo_ai_get_task":         h.GetTaskHandler,
		"wpforo_ai_list_tasks":       h.ListTasksHandler,
		"wpforo_ai_delete_task":      h.DeleteTaskHandler,
		"wpforo_ai_run_task":         h.RunTaskHandler,
		"wpforo_ai_toggle_task":      h.ToggleTaskHandler,
		"wpforo_ai_task_logs":        h.TaskLogsHandler,
		"wpforo_ai_admin_logs":       h.AdminLogsHandler,
		"wpforo_ai_content_approved": h.ContentApprovedHandler,
		"wpforo_ai_chat_message":     h.ChatMessageHandler,
		"wpforo_ai_chat_history":     h.ChatHistoryHandler,
		"wpforo_ai_chat_list":        h.ChatListHandler,
	}
}

// AdminActions lists the actions that require the capability check in
// addition to a valid nonce. Chat actions are available to any visitor
// holding a nonce.
func AdminActions() map[string]bool {
	return map[string]bool{
		"wpforo_ai_save_task":        true,
		"wpforo_ai_get_task":         true,
		"wpforo_ai_list_tasks":       true,
		"wpforo_ai_delete_task":      true,
		"wpforo_ai_run_task":         true,
		"wpforo_ai_toggle_task":      true,
		"wpforo_ai_task_logs":        true,
		"wpforo_ai_admin_logs":       true,
		"wpforo_ai_content_approved": true,
	}
}

// DispatchHandler routes a request to its action handler. The auth
// middleware has already validated the nonce (and capability, for admin
// actions) and stored the action string in the context.
func (h *APIHandler) DispatchHandler(c *gin.Context) {
	action := c.GetString("action")
	handler, ok := h.actions()[action]
	if !ok {
		utils.SendJSONError(c, http.StatusBadRequest, fmt.Sprintf("Unknown action '%s'.", action), nil)
		return
	}
	handler(c)
}

// NonceHandler issues a nonce for an action so the frontend can call the
// dispatcher. In the host-plugin deployment this is rendered into the
// page; here it is its own endpoint.
func (h *APIHandler) NonceHandler(c *gin.Context) {
	action := c.Query("action")
	if action == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "Missing action parameter.", nil)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"nonce": utils.CreateNonce(config.AppConfig.Auth.NonceSecret, action)})
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	utils.SendJSONSuccess(c, gin.H{"status": "ok", "time": utils.FormatTime(time.Now())})
}

// saveTaskRequest is the payload for wpforo_ai_save_task. Config is the
// raw per-type blob; it is validated by decoding.
type saveTaskRequest struct {
	ID      uint              `json:"id"`
	Name    string            `json:"name"`
	Type    models.TaskType   `json:"type"`
	Status  models.TaskStatus `json:"status"`
	BoardID uint              `json:"board_id"`
	Config  datatypes.JSON    `json:"config"`
}

// SaveTaskHandler creates or updates a task. Activating a task arms its
// next run time; any other status leaves the schedule cleared.
func (h *APIHandler) SaveTaskHandler(c *gin.Context) {
	var req saveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request body.", err)
		return
	}
	if req.Name == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "Task name is required.", nil)
		return
	}
	switch req.Type {
	case models.TaskTypeTopicGenerator, models.TaskTypeReplyGenerator, models.TaskTypeTagMaintenance:
	default:
		utils.SendJSONError(c, http.StatusBadRequest, fmt.Sprintf("Unknown task type '%s'.", req.Type), nil)
		return
	}
	if _, err := models.DecodeTaskConfig(req.Config); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Task config is not valid JSON.", err)
		return
	}
	if req.Status == "" {
		req.Status = models.TaskStatusDraft
	}

	var task *models.Task
	if req.ID != 0 {
		existing, err := h.taskRepo.GetTaskByID(req.ID)
		if err != nil {
			utils.SendJSONError(c, http.StatusInternalServerError, "", err)
			return
		}
		if existing == nil {
			utils.SendJSONError(c, http.StatusNotFound, fmt.Sprintf("Task %d not found.", req.ID), nil)
			return
		}
		existing.Name = req.Name
		existing.Type = req.Type
		existing.Status = req.Status
		existing.BoardID = req.BoardID
		existing.Config = req.Config
		if err := h.taskRepo.UpdateTask(existing); err != nil {
			utils.SendJSONError(c, http.StatusInternalServerError, "", err)
			return
		}
		task = existing
	} else {
		task = &models.Task{
			Name:    req.Name,
			Type:    req.Type,
			Status:  req.Status,
			BoardID: req.BoardID,
			Config:  req.Config,
		}
		if err := h.taskRepo.CreateTask(task); err != nil {
			utils.SendJSONError(c, http.StatusInternalServerError, "", err)
			return
		}
	}

	if err := h.scheduler.ScheduleNextRun(task.ID); err != nil {
		log.Printf("ERROR: [API] Failed to schedule task %d after save: %v", task.ID, err)
	}
	saved, err := h.taskRepo.GetTaskByID(task.ID)
	if err != nil || saved == nil {
		saved = task
	}
	utils.SendJSONSuccess(c, gin.H{"task": saved})
}

// GetTaskHandler returns one task.
func (h *APIHandler) GetTaskHandler(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	task, err := h.taskRepo.GetTaskByID(taskID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	if task == nil {
		utils.SendJSONError(c, http.StatusNotFound, fmt.Sprintf("Task %d not found.", taskID), nil)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"task": task})
}

// ListTasksHandler returns tasks, optionally filtered by board.
func (h *APIHandler) ListTasksHandler(c *gin.Context) {
	boardID := uint(0)
	if raw := c.Query("board_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			utils.SendJSONError(c, http.StatusBadRequest, "Invalid board_id parameter.", err)
			return
		}
		boardID = uint(parsed)
	}
	tasks, err := h.taskRepo.ListTasks(boardID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"tasks": tasks})
}

// DeleteTaskHandler deletes a task. Its logs cascade with it and the
// pending schedule disappears with the row.
func (h *APIHandler) DeleteTaskHandler(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	if err := h.taskRepo.DeleteTask(taskID); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"deleted": taskID})
}

// RunTaskHandler runs a task immediately, outside its schedule.
func (h *APIHandler) RunTaskHandler(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	result, err := h.executor.RunTaskByID(c.Request.Context(), taskID)
	if err != nil {
		// The run is already recorded in the task log; surface the
		// generic failure to the admin UI.
		utils.SendJSONError(c, http.StatusBadGateway, "Task execution failed. Check the task logs for details.", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"result": result})
}

// ToggleTaskHandler flips a task between active and paused, re-arming or
// clearing its schedule accordingly.
func (h *APIHandler) ToggleTaskHandler(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	task, err := h.taskRepo.GetTaskByID(taskID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	if task == nil {
		utils.SendJSONError(c, http.StatusNotFound, fmt.Sprintf("Task %d not found.", taskID), nil)
		return
	}
	if task.Status == models.TaskStatusActive {
		task.Status = models.TaskStatusPaused
		task.NextRunTime = nil
	} else {
		task.Status = models.TaskStatusActive
	}
	if err := h.taskRepo.UpdateTask(task); err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	if task.Status == models.TaskStatusActive {
		if err := h.scheduler.ScheduleNextRun(task.ID); err != nil {
			log.Printf("ERROR: [API] Failed to schedule task %d after toggle: %v", task.ID, err)
		}
	}
	utils.SendJSONSuccess(c, gin.H{"status": task.Status})
}

// TaskLogsHandler returns a task's recent run log.
func (h *APIHandler) TaskLogsHandler(c *gin.Context) {
	taskID, ok := h.taskIDParam(c)
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	logs, err := h.taskRepo.GetLogs(taskID, limit)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"logs": logs})
}

// AdminLogsHandler returns the central operator log.
func (h *APIHandler) AdminLogsHandler(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := h.adminLogs.Recent(limit)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"logs": entries})
}

// contentApprovedRequest is the payload the forum sends when a topic or
// post is approved, triggering run_on_approval tasks.
type contentApprovedRequest struct {
	TaskID  uint `json:"task_id"`
	TopicID uint `json:"topic_id"`
}

// ContentApprovedHandler is the event hook driving run_on_approval tasks.
func (h *APIHandler) ContentApprovedHandler(c *gin.Context) {
	var req contentApprovedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request body.", err)
		return
	}
	if req.TaskID == 0 || req.TopicID == 0 {
		utils.SendJSONError(c, http.StatusBadRequest, "task_id and topic_id are required.", nil)
		return
	}
	result, err := h.executor.OnContentApproved(c.Request.Context(), req.TaskID, req.TopicID)
	if err != nil {
		utils.SendJSONError(c, http.StatusBadGateway, "Approval-triggered run failed.", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"result": result})
}

func (h *APIHandler) taskIDParam(c *gin.Context) (uint, bool) {
	raw := c.Query("task_id")
	if raw == "" {
		raw = c.PostForm("task_id")
	}
	if raw == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "Missing task_id parameter.", nil)
		return 0, false
	}
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || parsed == 0 {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid task_id parameter.", err)
		return 0, false
	}
	return uint(parsed), true
}
