package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"price_tracker/httputil"
	"price_tracker/identity"
	"price_tracker/models"
)

const maxImageAttempts = 3

// ImageStore is the catalog side of image archiving.
type ImageStore interface {
	ProductsMissingImage(ctx context.Context, limit int) ([]models.Product, error)
	SetImageKey(ctx context.Context, productID int64, key string) error
}

// Uploader stores an object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// MediaWorker archives listing images: download, content-hash, upload, and
// record the object key on the product.
type MediaWorker struct {
	store      ImageStore
	httpClient *http.Client
	uploader   Uploader
	logFunc    LogFunc
	triggerCh  chan struct{}

	mu       sync.Mutex
	attempts map[int64]int
}

func NewMediaWorker(store ImageStore, uploader Uploader, client *http.Client) *MediaWorker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if uploader == nil {
		uploader = NewNoOpUploader()
	}
	return &MediaWorker{
		store:      store,
		httpClient: client,
		uploader:   uploader,
		logFunc:    NoOpLogger,
		triggerCh:  make(chan struct{}, 1),
		attempts:   make(map[int64]int),
	}
}

func (w *MediaWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

type MediaProcessResult struct {
	ProductID int64
	Key       string
	Size      int64
	Error     error
}

// Process downloads one product image and uploads it under a content key.
func (w *MediaWorker) Process(ctx context.Context, p *models.Product) MediaProcessResult {
	result := MediaProcessResult{ProductID: p.ID}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ImageURL, nil)
	if err != nil {
		result.Error = fmt.Errorf("create request: %w", err)
		return result
	}
	req.Header.Set("User-Agent", httputil.RandomUserAgent())
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("download: %w", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("download status: %d", resp.StatusCode)
		return result
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		result.Error = fmt.Errorf("read body: %w", err)
		return result
	}
	result.Size = int64(len(data))

	hash := identity.ContentKey(data)
	contentType := resp.Header.Get("Content-Type")
	result.Key = fmt.Sprintf("images/%s/%s%s", hash[:2], hash, guessExtension(p.ImageURL, contentType))

	if contentType == "" {
		contentType = "image/jpeg"
	}
	if err := w.uploader.Upload(ctx, result.Key, bytes.NewReader(data), contentType); err != nil {
		result.Error = fmt.Errorf("upload: %w", err)
		return result
	}
	return result
}

// guessExtension determines file extension from URL or content-type
func guessExtension(rawURL, contentType string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	ext := strings.ToLower(path.Ext(rawURL))
	if isImageExt(ext) {
		return ext
	}

	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// Trigger causes the worker to run immediately
func (w *MediaWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *MediaWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Media worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Media worker triggered manually")
			w.ProcessBatch(ctx, batchSize)
		}
	}
}

// ProcessBatch archives images for up to batchSize products. A product that
// fails maxImageAttempts times is skipped until the process restarts.
func (w *MediaWorker) ProcessBatch(ctx context.Context, batchSize int) (processed, failed int) {
	products, err := w.store.ProductsMissingImage(ctx, batchSize)
	if err != nil {
		log.Printf("Media worker: query error: %v", err)
		return 0, 0
	}

	for i := range products {
		p := &products[i]
		if w.exhausted(p.ID) {
			continue
		}

		result := w.Process(ctx, p)
		if result.Error != nil {
			log.Printf("Media worker: failed %s: %v", p.ImageURL, result.Error)
			w.recordFailure(p.ID)
			failed++
			continue
		}

		if err := w.store.SetImageKey(ctx, p.ID, result.Key); err != nil {
			log.Printf("Media worker: failed to update product %d: %v", p.ID, err)
			failed++
			continue
		}
		processed++
	}

	if processed > 0 || failed > 0 {
		msg := fmt.Sprintf("processed %d, failed %d", processed, failed)
		log.Printf("Media worker: %s", msg)
		w.logFunc(models.LogLevelInfo, "media", msg)
	}
	return processed, failed
}

func (w *MediaWorker) exhausted(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[id] >= maxImageAttempts
}

func (w *MediaWorker) recordFailure(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[id]++
}

// NoOpUploader discards uploads. It is the default when no uploader is given.
type NoOpUploader struct{}

func (u *NoOpUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := io.Copy(io.Discard, data)
	return err
}

func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}
