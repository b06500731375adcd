package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

// AuditReader is the read side of the audit log.
type AuditReader interface {
	GetEvents(filter audit.EventFilter) ([]entities.AuditEvent, int64, error)
	GetRequestTrail(requestID string) ([]entities.AuditEvent, error)
}

type AuditController struct {
	events AuditReader
	policy Authorizer
}

func NewAuditController(events AuditReader, policy Authorizer) *AuditController {
	return &AuditController{events: events, policy: policy}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=loan&entity_type=book&entity_id=3&user_id=2&page=1&limit=25
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	if !authorize(c, ac.policy, library.OpViewAudit) {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	filter := audit.EventFilter{
		EventType:  entities.AuditEventType(c.Query("type")),
		EntityType: c.Query("entity_type"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid user_id")
			return
		}
		filter.UserID = uint(userID)
	}
	if raw := c.Query("entity_id"); raw != "" {
		entityID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid entity_id")
			return
		}
		id := uint(entityID)
		filter.EntityID = &id
	}

	events, total, err := ac.events.GetEvents(filter)
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Page:       page,
		Limit:      limit,
		Offset:     filter.Offset,
		HasMore:    page < totalPages,
		TotalPages: totalPages,
	})
}

// GetRequestTrail returns every event recorded while serving one request.
// GET /api/audit/requests/:id
func (ac *AuditController) GetRequestTrail(c *gin.Context) {
	if !authorize(c, ac.policy, library.OpViewAudit) {
		return
	}
	events, err := ac.events.GetRequestTrail(c.Param("id"))
	if err != nil {
		respondInternalError(c, err, "audit request trail")
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": c.Param("id"), "events": events})
}
