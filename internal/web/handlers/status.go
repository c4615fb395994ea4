package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"container-autopilot/internal/history"
	"container-autopilot/internal/monitoring/engine"
	"container-autopilot/internal/monitoring/models"
)

// StatusHandler expõe o estado do control loop
type StatusHandler struct {
	engine  *engine.Engine
	tracker *history.Tracker
}

// NewStatusHandler cria o handler
func NewStatusHandler(eng *engine.Engine, tracker *history.Tracker) *StatusHandler {
	return &StatusHandler{
		engine:  eng,
		tracker: tracker,
	}
}

// Status retorna o estado geral do autopilot
// GET /api/v1/status
func (h *StatusHandler) Status(c *gin.Context) {
	store := h.engine.GetStore()

	openTickets := 0
	for _, st := range store.Snapshot() {
		openTickets += len(st.OpenTickets)
	}

	c.JSON(200, gin.H{
		"success": true,
		"data": gin.H{
			"running":         h.engine.IsRunning(),
			"paused":          h.engine.IsPaused(),
			"services":        store.Len(),
			"open_tickets":    openTickets,
			"source_failures": h.engine.SourceFailures(),
		},
	})
}

// serviceView representação de um serviço na API
type serviceView struct {
	ServiceID       string            `json:"service_id"`
	DesiredReplicas int               `json:"desired_replicas"`
	CPUBreaches     int               `json:"cpu_breaches"`
	MemBreaches     int               `json:"mem_breaches"`
	OpenTickets     map[string]string `json:"open_tickets,omitempty"`
	LastScaleAction *time.Time        `json:"last_scale_action,omitempty"`
	LastSeenPoll    uint64            `json:"last_seen_poll"`
	Stale           bool              `json:"stale"`
}

// Services lista os serviços rastreados e seu estado
// GET /api/v1/services
func (h *StatusHandler) Services(c *gin.Context) {
	states := h.engine.GetStore().Snapshot()

	views := make([]serviceView, 0, len(states))
	for _, st := range states {
		view := serviceView{
			ServiceID:       st.ServiceID,
			DesiredReplicas: st.DesiredReplicas,
			CPUBreaches:     st.CPUBreaches,
			MemBreaches:     st.MemBreaches,
			LastSeenPoll:    st.LastSeenPoll,
			Stale:           h.engine.IsStale(st.ServiceID),
		}
		if len(st.OpenTickets) > 0 {
			view.OpenTickets = make(map[string]string, len(st.OpenTickets))
			for metric, id := range st.OpenTickets {
				view.OpenTickets[metric.String()] = id
			}
		}
		if !st.LastScaleAction.IsZero() {
			t := st.LastScaleAction
			view.LastScaleAction = &t
		}
		views = append(views, view)
	}

	c.JSON(200, gin.H{
		"success": true,
		"data":    views,
		"count":   len(views),
	})
}

// Samples retorna o histórico de métricas de um serviço
// GET /api/v1/services/:id/samples?hours=24
func (h *StatusHandler) Samples(c *gin.Context) {
	serviceID := c.Param("id")

	hours := 24
	if v := c.Query("hours"); v != "" {
		if parsed, err := time.ParseDuration(v + "h"); err == nil {
			hours = int(parsed.Hours())
		}
	}

	persistence := h.engine.GetPersistence()
	if persistence == nil {
		c.JSON(200, gin.H{
			"success": true,
			"data":    []models.Sample{},
			"count":   0,
		})
		return
	}

	samples, err := persistence.LoadSamples(serviceID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		c.JSON(500, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SAMPLES_LOAD_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"data":    samples,
		"count":   len(samples),
	})
}

// History lista as ações despachadas
// GET /api/v1/history?action=scale_up&service=web-01&status=success
func (h *StatusHandler) History(c *gin.Context) {
	filter := history.Filter{
		Action:  c.Query("action"),
		Service: c.Query("service"),
		Status:  c.Query("status"),
	}

	entries := h.tracker.GetFiltered(filter)

	c.JSON(200, gin.H{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}

// Pause pausa o control loop
// POST /api/v1/pause
func (h *StatusHandler) Pause(c *gin.Context) {
	h.engine.Pause()
	c.JSON(200, gin.H{
		"success": true,
		"message": "Control loop pausado",
	})
}

// Resume retoma o control loop
// POST /api/v1/resume
func (h *StatusHandler) Resume(c *gin.Context) {
	h.engine.Resume()
	c.JSON(200, gin.H{
		"success": true,
		"message": "Control loop retomado",
	})
}
