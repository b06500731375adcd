package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/library"
	"github.com/mrlokans/librarian/internal/tasks"
)

// TaskQueue is the part of the task client the maintenance endpoints need.
type TaskQueue interface {
	Enqueue(tasks ...backlite.Task) ([]string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

type MaintenanceController struct {
	checker  tasks.AvailabilityChecker
	policy   Authorizer
	auditLog tasks.MaintenanceLogger
	queue    TaskQueue
}

// NewMaintenanceController creates the reconcile endpoints. queue may be nil
// when the task queue is disabled; reconcile then only runs inline.
func NewMaintenanceController(checker tasks.AvailabilityChecker, policy Authorizer, auditLog tasks.MaintenanceLogger, queue TaskQueue) *MaintenanceController {
	return &MaintenanceController{checker: checker, policy: policy, auditLog: auditLog, queue: queue}
}

// Reconcile handles POST /api/admin/reconcile?repair=true&async=true
// It reports books whose availability flag disagrees with the loan ledger
// and, with repair, rewrites them. async hands the work to the task queue.
func (mc *MaintenanceController) Reconcile(c *gin.Context) {
	if !authorize(c, mc.policy, library.OpReconcile) {
		return
	}
	repair, _ := strconv.ParseBool(c.Query("repair"))
	async, _ := strconv.ParseBool(c.Query("async"))

	if async {
		if mc.queue == nil {
			respondBadRequest(c, "task queue is disabled")
			return
		}
		ids, err := mc.queue.Enqueue(tasks.CheckAvailabilityTask{Repair: repair})
		if err != nil {
			respondInternalError(c, err, "enqueue reconcile")
			return
		}
		respondAccepted(c, "task enqueued", gin.H{"task_id": ids[0]})
		return
	}

	action, run := "availability_check", mc.checker.CheckAvailability
	if repair {
		action, run = "availability_repair", mc.checker.RepairAvailability
	}
	drift, err := run(c.Request.Context())
	if mc.auditLog != nil {
		repaired := 0
		if repair && err == nil {
			repaired = len(drift)
		}
		mc.auditLog.LogMaintenance(actor(c), action, len(drift), repaired, err)
	}
	if err != nil {
		respondLibraryError(c, err, action)
		return
	}

	if drift == nil {
		drift = []library.AvailabilityDrift{}
	}
	c.JSON(http.StatusOK, gin.H{
		"repaired": repair,
		"drift":    drift,
		"count":    len(drift),
	})
}

// GetTaskStatus handles GET /api/admin/tasks/:id
func (mc *MaintenanceController) GetTaskStatus(c *gin.Context) {
	if !authorize(c, mc.policy, library.OpReconcile) {
		return
	}
	if mc.queue == nil {
		respondBadRequest(c, "task queue is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	taskID := c.Param("id")
	status, err := mc.queue.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}

	code := http.StatusOK
	if status == backlite.TaskStatusNotFound {
		code = http.StatusNotFound
	}
	c.JSON(code, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
