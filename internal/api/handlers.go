// Package api wires up the Gin ops surface every node exposes alongside the
// wire protocol: health, Prometheus metrics, and read-only debug
// introspection of membership and the ring. None of this is on the client
// data path — the wire protocol (internal/wire, internal/dispatcher) is —
// this is purely for operators and load balancers, the same separation the
// teacher drew between its HTTP API and nothing-internal-facing.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shoplist/internal/membership"
	"shoplist/internal/store"
)

// Handler holds the dependencies the ops surface reports on.
type Handler struct {
	membership *membership.Membership
	storage    *store.Storage
	selfID     string
}

// NewHandler builds a Handler. storage may be nil for a proxy, which holds
// no list state of its own.
func NewHandler(m *membership.Membership, s *store.Storage, selfID string) *Handler {
	return &Handler{membership: m, storage: s, selfID: selfID}
}

// Register mounts every ops route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/debug/ring", h.DebugRing)
	r.GET("/debug/membership", h.DebugMembership)
	if h.storage != nil {
		r.GET("/debug/lists/:uuid", h.DebugList)
	}
}

// Health reports liveness and a one-line membership summary.
func (h *Handler) Health(c *gin.Context) {
	view := h.membership.View()
	c.JSON(http.StatusOK, gin.H{
		"node":    h.selfID,
		"status":  "ok",
		"servers": len(view.Servers),
		"proxies": len(view.Proxies),
		"version": view.Version,
	})
}

// DebugRing dumps the ring's server ordering.
func (h *Handler) DebugRing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"servers": h.membership.Ring().Ports()})
}

// DebugMembership dumps the full membership view.
func (h *Handler) DebugMembership(c *gin.Context) {
	c.JSON(http.StatusOK, h.membership.View())
}

// DebugList dumps the materialized view rows for one stored list, if this
// node has a copy (primary or replica).
func (h *Handler) DebugList(c *gin.Context) {
	uuid := c.Param("uuid")
	rec, ok, err := h.storage.Get(uuid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uuid":       rec.UUID,
		"name":       rec.Name,
		"is_replica": rec.IsReplica,
		"replica_id": rec.ReplicaID,
		"items":      rec.ViewRows(),
	})
}
