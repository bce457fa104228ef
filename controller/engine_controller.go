package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"esgdocs/models"
	"esgdocs/services"
)

// EngineController exposes the ingestion trigger and the retrieval entry point
// over HTTP. It holds no state of its own; everything is delegated to the
// injected engine.
type EngineController struct {
	engine *services.Engine
}

func NewEngineController(engine *services.Engine) *EngineController {
	return &EngineController{engine: engine}
}

// Ingest is the Gin handler for POST /api/v1/ingest. It runs a full ingestion
// pass over the given data directory and reports how many chunks were added.
func (c *EngineController) Ingest(ctx *gin.Context) {
	var req models.IngestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.DataDir == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "data_dir is required"})
		return
	}

	added, err := c.engine.IngestDirectory(ctx.Request.Context(), req.DataDir, req.Clear)
	if err != nil {
		if errors.Is(err, services.ErrEngineUnavailable) {
			ctx.JSON(http.StatusServiceUnavailable, models.IngestResponse{AddedChunks: added, Error: err.Error()})
			return
		}
		// Partial writes stay committed; the caller re-runs to converge.
		ctx.JSON(http.StatusInternalServerError, models.IngestResponse{AddedChunks: added, Error: "Ingestion failed, re-run to resume"})
		return
	}
	ctx.JSON(http.StatusOK, models.IngestResponse{AddedChunks: added})
}

// Search is the Gin handler for POST /api/v1/search. It accepts a question
// with an optional metadata filter and per-request pipeline knobs.
func (c *EngineController) Search(ctx *gin.Context) {
	var req models.SearchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Question == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	query := models.RetrievalQuery{Question: req.Question, Filter: req.Filter}
	params := services.SearchParams{TopK: req.TopK, FetchK: req.FetchK, MMRLambda: req.MMRLambda}

	chunks, err := c.engine.Search(ctx.Request.Context(), query, params)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}
	ctx.JSON(http.StatusOK, models.SearchResponse{Count: len(chunks), Chunks: chunks})
}

// Stats is the Gin handler for GET /api/v1/stats.
func (c *EngineController) Stats(ctx *gin.Context) {
	count, err := c.engine.ChunkCount(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read index stats"})
		return
	}
	ctx.JSON(http.StatusOK, models.StatsResponse{Chunks: count})
}
