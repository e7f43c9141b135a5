// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"websentinel/go-server/internal/analyzer"
)

const maxURLLength = 2048

type URLAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) (*analyzer.Report, error)
}

type PredictHandler struct {
	Analyzer URLAnalyzer
	Logger   *slog.Logger
}

func NewPredictHandler(a URLAnalyzer, logger *slog.Logger) *PredictHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictHandler{Analyzer: a, Logger: logger}
}

type predictRequest struct {
	URL string `json:"url"`
}

func (h *PredictHandler) Predict(c *gin.Context) {
	traceID, _ := c.Get("trace_id")

	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		h.Logger.Warn("URL not provided in request", "trace_id", traceID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}
	if len(req.URL) > maxURLLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is too long"})
		return
	}

	report, err := h.Analyzer.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		var invalid *analyzer.InvalidInputError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		case errors.Is(err, analyzer.ErrAtCapacity):
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System is currently at capacity. Please try again in a moment."})
		default:
			h.Logger.Error("Prediction failed", "trace_id", traceID, "url", req.URL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed", "trace_id": traceID})
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

func Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Backend is running"})
}
