package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-gonic/gin"
	"google.golang.org/genai"

	"esgdocs/controller"
	"esgdocs/services"
)

const collectionName = "esg_all"

func main() {
	httpClient := &http.Client{
		Timeout: 120 * time.Second,
	}

	var chromaOpts []chromago.ClientOption
	if url := os.Getenv("CHROMA_URL"); url != "" {
		chromaOpts = append(chromaOpts, chromago.WithBaseURL(url))
	}
	chromaClient, err := chromago.NewHTTPClient(chromaOpts...)
	if err != nil {
		log.Fatalf("FATAL: Failed to create chroma client: %v", err)
	}

	store, err := services.NewChromaStore(chromaClient, collectionName)
	if err != nil {
		log.Fatalf("FATAL: Failed to open collection %s: %v", collectionName, err)
	}

	embedder := services.NewOllamaEmbedder(httpClient, os.Getenv("OLLAMA_URL"), os.Getenv("OLLAMA_EMBED_MODEL"))

	qc, err := services.NewQCReporter(os.Getenv("QC_REPORT_DIR"))
	if err != nil {
		log.Fatalf("FATAL: Failed to set up QC reporting: %v", err)
	}

	extractor := services.NewExtractorService(services.DefaultExtractionConfig())
	cleaner := services.NewCleaningService(services.DefaultCleaningConfig())
	ocr := services.NewOCRService(services.DefaultExtractionConfig(), services.TesseractEngine{})
	segmenter := services.NewSegmentationService(services.DefaultSegmentationConfig())

	ingestion := services.NewIngestionService(extractor, cleaner, ocr, segmenter, embedder, store, qc, 4)

	// Rewrite and rerank are optional capabilities: without an API key the
	// pipeline runs with raw questions and search-order candidates.
	var retrievalOpts []services.RetrievalOption
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		geminiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to create Gemini client: %v", err)
		}
		retrievalOpts = append(retrievalOpts,
			services.WithRewriter(services.NewGeminiRewriter(geminiClient)),
			services.WithReranker(services.NewGeminiReranker(geminiClient)),
		)
		log.Println("Successfully connected to Google Gemini; rewrite and rerank enabled.")
	} else {
		log.Println("GEMINI_API_KEY not set; rewrite and rerank disabled.")
	}

	retrieval := services.NewRetrievalService(services.DefaultRetrievalConfig(), store, embedder, retrievalOpts...)

	engine := services.NewEngine(context.Background(), ingestion, retrieval, store, embedder, chromaClient.Close)
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("Warning: Failed to close engine: %v", err)
		}
	}()
	if !engine.Available() {
		log.Println("WARNING: embedding model unreachable; ingestion and search will report unavailable.")
	}

	// Optional background watcher over the data root.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		go engine.Watch(watchCtx, dataDir)
	}

	engineController := controller.NewEngineController(engine)

	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		if !engine.Available() {
			status = "degraded"
		}
		c.JSON(200, gin.H{
			"status":  status,
			"service": "ESG document engine",
			"version": "1.0.0",
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/ingest", engineController.Ingest) // Trigger a full ingestion pass
		apiV1.POST("/search", engineController.Search) // Retrieve ranked chunks for a question
		apiV1.GET("/stats", engineController.Stats)    // Index size
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("ESG document engine starting on http://localhost:%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}
