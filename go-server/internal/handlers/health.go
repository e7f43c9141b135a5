// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"websentinel/go-server/internal/telemetry"
)

type CacheReporter interface {
	Stats() telemetry.CacheStats
}

type CapacityReporter interface {
	InFlight() int
	Capacity() int
}

type HealthHandler struct {
	StartTime  time.Time
	AppVersion string
	Telemetry  *telemetry.Registry
	Caches     []CacheReporter
	Capacity   CapacityReporter
}

func NewHealthHandler(appVersion string, reg *telemetry.Registry, capacity CapacityReporter, caches ...CacheReporter) *HealthHandler {
	return &HealthHandler{
		StartTime:  time.Now(),
		AppVersion: appVersion,
		Telemetry:  reg,
		Caches:     caches,
		Capacity:   capacity,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := gin.H{
		"status":  "ok",
		"version": h.AppVersion,
		"uptime":  time.Since(h.StartTime).Round(time.Second).String(),
		"memory": gin.H{
			"alloc_mb":       memStats.Alloc / 1024 / 1024,
			"sys_mb":         memStats.Sys / 1024 / 1024,
			"num_goroutines": runtime.NumGoroutine(),
		},
	}

	if h.Capacity != nil {
		response["analyses"] = gin.H{
			"in_flight": h.Capacity.InFlight(),
			"capacity":  h.Capacity.Capacity(),
		}
	}

	caches := make([]telemetry.CacheStats, 0, len(h.Caches))
	for _, cr := range h.Caches {
		caches = append(caches, cr.Stats())
	}
	response["caches"] = caches

	if h.Telemetry != nil {
		response["lookups"] = h.Telemetry.AllStats()
		response["overall_lookup_health"] = string(h.Telemetry.Overall())
	}

	c.JSON(http.StatusOK, response)
}
