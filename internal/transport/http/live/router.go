package livehttp

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"deltadeck/internal/agent"
	"deltadeck/internal/order"
	"deltadeck/internal/risk"
	"deltadeck/internal/takeprofit"
)

// RiskService is the read/patch surface the dashboard needs from the
// risk manager.
type RiskService interface {
	Limits() risk.Limits
	UpdateLimits(patch risk.LimitsPatch) risk.Limits
	Alerts() []risk.Alert
	DailyPnL() float64
}

type OrderService interface {
	AllOrders() []order.Confirmed
	OpenOrders() []order.Confirmed
	OrdersByState(state string) []order.Confirmed
	Order(id string) (order.Confirmed, bool)
	PendingSubmissions() []order.Submission
	CancelOrder(ctx context.Context, orderID string) error
}

type TakeProfitService interface {
	Plans() []takeprofit.Plan
	Plan(tradeID string) (takeprofit.Plan, bool)
	Events() []takeprofit.Event
	Deactivate(tradeID string) bool
}

type AgentService interface {
	State() agent.Snapshot
	Decisions() []agent.Decision
	Pause() error
	Resume() error
	Stop()
}

// Router exposes the live query and control routes.
type Router struct {
	risk       RiskService
	orders     OrderService
	takeProfit TakeProfitService
	agent      AgentService
}

func NewRouter(riskSvc RiskService, orders OrderService, takeProfit TakeProfitService, agentSvc AgentService) *Router {
	return &Router{risk: riskSvc, orders: orders, takeProfit: takeProfit, agent: agentSvc}
}

// Register mounts the routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/risk/limits", r.handleRiskLimits)
	group.PATCH("/risk/limits", r.handleRiskLimitsPatch)
	group.GET("/risk/alerts", r.handleRiskAlerts)

	group.GET("/orders", r.handleOrders)
	group.GET("/orders/pending", r.handlePendingOrders)
	group.GET("/orders/:id", r.handleOrderByID)
	group.DELETE("/orders/:id", r.handleOrderCancel)

	if r.takeProfit != nil {
		group.GET("/takeprofit/plans", r.handlePlans)
		group.GET("/takeprofit/plans/:id", r.handlePlanByID)
		group.GET("/takeprofit/events", r.handleEvents)
		group.POST("/takeprofit/plans/:id/deactivate", r.handlePlanDeactivate)
	}

	group.GET("/agent/state", r.handleAgentState)
	group.GET("/agent/decisions", r.handleAgentDecisions)
	group.POST("/agent/pause", r.handleAgentPause)
	group.POST("/agent/resume", r.handleAgentResume)
	group.POST("/agent/stop", r.handleAgentStop)
}

func (r *Router) handleRiskLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"limits":    r.risk.Limits(),
		"daily_pnl": r.risk.DailyPnL(),
	})
}

func (r *Router) handleRiskLimitsPatch(c *gin.Context) {
	var patch risk.LimitsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"limits": r.risk.UpdateLimits(patch)})
}

func (r *Router) handleRiskAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": r.risk.Alerts()})
}

func (r *Router) handleOrders(c *gin.Context) {
	state := strings.TrimSpace(c.Query("state"))
	switch {
	case state != "":
		c.JSON(http.StatusOK, gin.H{"orders": r.orders.OrdersByState(state)})
	case c.Query("open") == "true":
		c.JSON(http.StatusOK, gin.H{"orders": r.orders.OpenOrders()})
	default:
		c.JSON(http.StatusOK, gin.H{"orders": r.orders.AllOrders()})
	}
}

func (r *Router) handlePendingOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": r.orders.PendingSubmissions()})
}

func (r *Router) handleOrderByID(c *gin.Context) {
	rec, ok := r.orders.Order(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleOrderCancel(c *gin.Context) {
	if err := r.orders.CancelOrder(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancel submitted"})
}

func (r *Router) handlePlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": r.takeProfit.Plans()})
}

func (r *Router) handlePlanByID(c *gin.Context) {
	plan, ok := r.takeProfit.Plan(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (r *Router) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": r.takeProfit.Events()})
}

func (r *Router) handlePlanDeactivate(c *gin.Context) {
	if !r.takeProfit.Deactivate(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (r *Router) handleAgentState(c *gin.Context) {
	c.JSON(http.StatusOK, r.agent.State())
}

func (r *Router) handleAgentDecisions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"decisions": r.agent.Decisions()})
}

func (r *Router) handleAgentPause(c *gin.Context) {
	if err := r.agent.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (r *Router) handleAgentResume(c *gin.Context) {
	if err := r.agent.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

func (r *Router) handleAgentStop(c *gin.Context) {
	r.agent.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
