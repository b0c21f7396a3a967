package outputs

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"synthmon/internal/config"
	"synthmon/internal/models"
)

// ElasticsearchOutput pushes check results to Elasticsearch
type ElasticsearchOutput struct {
	config       *config.ElasticsearchConfig
	client       *elasticsearch.Client
	bulkIndexer  esutil.BulkIndexer
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	eventChannel chan *models.CheckEvent
}

// checkDocument is the indexed shape of one check. The HAR is left out;
// traces stay in the execution log store and are far too large for a
// per-check document.
type checkDocument struct {
	Timestamp          time.Time `json:"@timestamp"`
	CheckID            string    `json:"check_id"`
	MonitorID          int64     `json:"monitor_id"`
	Monitor            string    `json:"monitor"`
	URL                string    `json:"url"`
	Tags               []string  `json:"tags,omitempty"`
	Status             string    `json:"status"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	TTFBMs             *float64  `json:"ttfb_ms,omitempty"`
	DOMContentLoadedMs *float64  `json:"dom_content_loaded_ms,omitempty"`
	PageLoadMs         *float64  `json:"page_load_time_ms,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
}

// NewElasticsearchOutput creates a new Elasticsearch output
func NewElasticsearchOutput(cfg *config.ElasticsearchConfig) (*ElasticsearchOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	// Build Elasticsearch configuration
	esCfg := elasticsearch.Config{
		Addresses:     []string{cfg.Endpoint},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	}

	// Configure authentication
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	// Configure TLS
	if cfg.TLSSkipVerify {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	// Create Elasticsearch client
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	// Test connection
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch returned error: %s", res.Status())
	}

	log.Printf("Connected to Elasticsearch at %s", cfg.Endpoint)

	// Create bulk indexer
	bulkIndexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    2,
		FlushBytes:    cfg.BulkSize * 1024,
		FlushInterval: cfg.FlushInterval.Duration(),
		OnError: func(ctx context.Context, err error) {
			log.Printf("Elasticsearch bulk indexer error: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &ElasticsearchOutput{
		config:       cfg,
		client:       client,
		bulkIndexer:  bulkIndexer,
		ctx:          ctx,
		cancel:       cancel,
		eventChannel: make(chan *models.CheckEvent, 100),
	}

	// Start background worker to process events
	e.wg.Add(1)
	go e.processEvents()

	return e, nil
}

// processEvents is a background worker that indexes check events
func (e *ElasticsearchOutput) processEvents() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case event := <-e.eventChannel:
			if err := e.indexEvent(event); err != nil {
				log.Printf("Failed to index check to Elasticsearch: %v", err)
			}
		}
	}
}

// indexEvent indexes a single check event to Elasticsearch
func (e *ElasticsearchOutput) indexEvent(event *models.CheckEvent) error {
	res := event.Result

	// Format the index name using the pattern
	// Replace %{+yyyy.MM.dd} with actual date
	indexName := e.formatIndexName(res.CompletedAt)

	doc := checkDocument{
		Timestamp:          res.CompletedAt,
		CheckID:            res.CheckID,
		MonitorID:          res.MonitorID,
		Monitor:            event.Monitor.Name,
		URL:                event.Monitor.URL,
		Tags:               event.Monitor.Tags,
		Status:             string(res.Status),
		ErrorMessage:       res.ErrorMessage,
		TTFBMs:             res.TTFBMs,
		DOMContentLoadedMs: res.DOMContentLoadedMs,
		PageLoadMs:         res.PageLoadMs,
		DurationMs:         res.Duration().Milliseconds(),
		StartedAt:          res.StartedAt,
		CompletedAt:        res.CompletedAt,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal check document: %w", err)
	}

	// Add to bulk indexer
	err = e.bulkIndexer.Add(
		e.ctx,
		esutil.BulkIndexerItem{
			Action:     "index",
			Index:      indexName,
			DocumentID: res.CheckID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					log.Printf("Elasticsearch indexing error: %v", err)
				} else {
					log.Printf("Elasticsearch indexing failed: %s: %s", res.Error.Type, res.Error.Reason)
				}
			},
		},
	)

	return err
}

// formatIndexName formats the index name using the configured pattern
func (e *ElasticsearchOutput) formatIndexName(t time.Time) string {
	indexName := e.config.IndexPattern

	// Replace date format patterns
	// %{+yyyy.MM.dd} -> 2024.01.15
	if strings.Contains(indexName, "%{+yyyy.MM.dd}") {
		dateStr := t.Format("2006.01.02")
		indexName = strings.Replace(indexName, "%{+yyyy.MM.dd}", dateStr, -1)
	}

	// %{+yyyy.MM} -> 2024.01
	if strings.Contains(indexName, "%{+yyyy.MM}") {
		dateStr := t.Format("2006.01")
		indexName = strings.Replace(indexName, "%{+yyyy.MM}", dateStr, -1)
	}

	// %{+yyyy} -> 2024
	if strings.Contains(indexName, "%{+yyyy}") {
		dateStr := t.Format("2006")
		indexName = strings.Replace(indexName, "%{+yyyy}", dateStr, -1)
	}

	return indexName
}

// Write queues a check event for indexing
func (e *ElasticsearchOutput) Write(event *models.CheckEvent) error {
	if e == nil {
		return nil
	}

	// Send to channel for async processing
	select {
	case e.eventChannel <- event:
		return nil
	case <-e.ctx.Done():
		return fmt.Errorf("Elasticsearch output is shutting down")
	default:
		// Channel is full, log and drop
		log.Printf("Warning: Elasticsearch event channel is full, dropping check")
		return nil
	}
}

// Name returns the output module name
func (e *ElasticsearchOutput) Name() string {
	return "elasticsearch"
}

// Close flushes pending documents and closes the connection
func (e *ElasticsearchOutput) Close() error {
	if e == nil {
		return nil
	}

	log.Println("Shutting down Elasticsearch output...")

	// Stop accepting new events
	e.cancel()

	// Wait for worker to finish
	e.wg.Wait()

	// Close the bulk indexer (flushes pending documents)
	if err := e.bulkIndexer.Close(context.Background()); err != nil {
		log.Printf("Error closing Elasticsearch bulk indexer: %v", err)
		return err
	}

	// Get statistics
	stats := e.bulkIndexer.Stats()
	log.Printf("Elasticsearch indexer stats: %d indexed, %d failed", stats.NumIndexed, stats.NumFailed)

	return nil
}
