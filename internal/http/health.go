package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping() error
}

// SchedulerStatus is the part of the maintenance scheduler reported by /health.
type SchedulerStatus interface {
	IsRunning() bool
	GetNextRunTime() *time.Time
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

type HealthController struct {
	db        Pinger
	scheduler SchedulerStatus
	version   string
}

func NewHealthController(db Pinger, version string) *HealthController {
	return &HealthController{
		db:      db,
		version: version,
	}
}

// SetScheduler adds the maintenance scheduler to the health checks. A stopped
// scheduler is reported but does not make the service unhealthy.
func (h *HealthController) SetScheduler(s SchedulerStatus) {
	h.scheduler = s
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	if h.scheduler != nil {
		checks["maintenance"] = "stopped"
		if h.scheduler.IsRunning() {
			checks["maintenance"] = "running"
			if next := h.scheduler.GetNextRunTime(); next != nil {
				checks["maintenance"] = "running, next run " + next.Format(time.RFC3339)
			}
		}
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

func (h *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
