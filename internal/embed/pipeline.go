package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xxxsen/common/logutil"

	"github.com/kvander/bookdex/internal/ai"
	"github.com/kvander/bookdex/internal/chunksplit"
	"github.com/kvander/bookdex/internal/model"
	appErr "github.com/kvander/bookdex/internal/pkg/errors"
	"github.com/kvander/bookdex/internal/repo"
)

// Item is one unit of text waiting for a vector.
type Item struct {
	ID          string
	Content     string
	ContentHash string
}

// Sink receives per-item outcomes as they complete. Commit runs once per
// successful item; a failed commit or a terminal provider failure goes to
// Fail. One bad item never aborts the batch.
type Sink interface {
	Commit(ctx context.Context, item Item, vector []float32) error
	Fail(ctx context.Context, item Item, cause error)
}

type Stats struct {
	Done      int
	Failed    int
	FromCache int
}

type Options struct {
	TokenLimit  int
	Concurrency int64
	MaxAttempts int
	BackoffBase time.Duration
}

type Pipeline struct {
	embedder ai.IEmbedder
	cache    *repo.EmbeddingCacheRepo
	opts     Options
}

// safetyMarginTokens keeps the char-based token estimate from brushing
// the provider's real tokenizer limit.
const safetyMarginTokens = 256

func NewPipeline(embedder ai.IEmbedder, cache *repo.EmbeddingCacheRepo, opts Options) *Pipeline {
	if opts.TokenLimit <= 0 {
		opts.TokenLimit = 8191
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	return &Pipeline{embedder: embedder, cache: cache, opts: opts}
}

// Run embeds every item under the configured concurrency limit. Each
// item commits independently through the sink, so a crash or a failed
// item leaves all finished items durable.
func (p *Pipeline) Run(ctx context.Context, items []Item, sink Sink) Stats {
	sem := semaphore.NewWeighted(p.opts.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var stats Stats

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			sink.Fail(ctx, item, err)
			mu.Lock()
			stats.Failed++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			defer sem.Release(1)
			vector, cached, err := p.embedOne(ctx, item)
			if err != nil {
				sink.Fail(ctx, item, err)
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				return
			}
			if err := sink.Commit(ctx, item, vector); err != nil {
				sink.Fail(ctx, item, err)
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			stats.Done++
			if cached {
				stats.FromCache++
			}
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return stats
}

func (p *Pipeline) embedOne(ctx context.Context, item Item) ([]float32, bool, error) {
	if p.cache != nil && item.ContentHash != "" {
		vector, ok, err := p.cache.Get(ctx, p.embedder.ModelName(), item.ContentHash)
		if err != nil {
			logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		} else if ok {
			return vector, true, nil
		}
	}

	budget := p.opts.TokenLimit - safetyMarginTokens
	text := chunksplit.TruncateToTokens(item.Content, budget)
	vector, err := p.embedWithRetry(ctx, item.ID, text)
	if errors.Is(err, appErr.ErrContextTooLong) {
		// The char estimate undershot the provider's tokenizer. Halve
		// once and try again; a second rejection is terminal.
		text = chunksplit.TruncateToTokens(text, budget/2)
		vector, err = p.embedWithRetry(ctx, item.ID, text)
	}
	if err != nil {
		return nil, false, err
	}

	if p.cache != nil && item.ContentHash != "" {
		saveErr := p.cache.Save(ctx, &model.EmbeddingCache{
			ModelName:   p.embedder.ModelName(),
			ContentHash: item.ContentHash,
			Embedding:   vector,
			Ctime:       time.Now().UnixMilli(),
		})
		if saveErr != nil {
			logutil.GetLogger(ctx).Warn("embedding cache save failed", zap.Error(saveErr))
		}
	}
	return vector, false, nil
}

func (p *Pipeline) embedWithRetry(ctx context.Context, id, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		vector, err := p.embedder.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		if !appErr.IsRetryable(err) {
			return nil, err
		}
		if attempt == p.opts.MaxAttempts {
			break
		}
		delay := p.opts.BackoffBase << (attempt - 1)
		logutil.GetLogger(ctx).Info("embedding attempt failed, backing off",
			zap.String("item", id), zap.Int("attempt", attempt),
			zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", p.opts.MaxAttempts, lastErr)
}
