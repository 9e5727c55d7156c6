package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/lexgraph/ai"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/embedding"
)

// embeddingProcessor produces node vectors for a corpus.
type embeddingProcessor struct {
	embedder       ai.Embedder
	model          string
	chunker        embedding.Chunker
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	pool           *ants.Pool
	logger         *slog.Logger
}

// embedResult holds the vectors of one pass, aligned with the provisions.
type embedResult struct {
	vectors  []*core.NodeVector // nil where a provision has no text
	embedded int
	reused   int
	skipped  int
}

// chunkRef locates one chunk text.
type chunkRef struct {
	node  int
	chunk int
}

// process embeds every provision whose content or model changed since the
// previous version. Unchanged provisions reuse their previous vector.
func (ep *embeddingProcessor) process(ctx context.Context, provisions []*core.Provision, previous map[string]*core.NodeVector, progress *ProgressTracker) (*embedResult, error) {
	res := &embedResult{vectors: make([]*core.NodeVector, len(provisions))}
	chunks := make([][][]float32, len(provisions))
	remaining := make([]atomic.Int32, len(provisions))
	var texts []string
	var refs []chunkRef

	for i, p := range provisions {
		hash := p.ContentHash()
		if prev, ok := previous[p.InternalID]; ok && prev.ContentHash == hash && prev.Model == ep.model && len(prev.Mean) > 0 {
			res.vectors[i] = &core.NodeVector{
				InternalID:  p.InternalID,
				ContentHash: hash,
				Model:       ep.model,
				Chunks:      prev.Chunks,
				Mean:        prev.Mean,
			}
			res.reused++
			progress.Increment(1)
			continue
		}
		parts := ep.chunker.Split(p.EmbeddingText())
		if len(parts) == 0 {
			res.skipped++
			progress.Increment(1)
			continue
		}
		chunks[i] = make([][]float32, len(parts))
		remaining[i].Store(int32(len(parts)))
		for j, text := range parts {
			texts = append(texts, text)
			refs = append(refs, chunkRef{node: i, chunk: j})
		}
	}

	ep.logger.Info("embedding provisions",
		"provisions", len(provisions),
		"reused", res.reused,
		"chunks", len(texts))

	if err := ep.embedChunks(ctx, texts, refs, chunks, remaining, progress); err != nil {
		return nil, err
	}

	for i, cs := range chunks {
		if cs == nil {
			continue
		}
		mean, err := embedding.Mean(cs)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", provisions[i].InternalID, err)
		}
		res.vectors[i] = &core.NodeVector{
			InternalID:  provisions[i].InternalID,
			ContentHash: provisions[i].ContentHash(),
			Model:       ep.model,
			Chunks:      cs,
			Mean:        mean,
		}
		res.embedded++
	}
	return res, nil
}

// embedChunks embeds texts in batches on the worker pool and stores each
// vector at its chunk slot. The first failure cancels the remaining batches.
func (ep *embeddingProcessor) embedChunks(ctx context.Context, texts []string, refs []chunkRef, chunks [][][]float32, remaining []atomic.Int32, progress *ProgressTracker) error {
	if len(texts) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += ep.batchSize {
		end := min(start+ep.batchSize, len(texts))
		batch, batchRefs := texts[start:end], refs[start:end]

		wg.Add(1)
		err := ep.pool.Submit(func() {
			defer wg.Done()
			vectors, err := ep.embedBatch(ctx, batch)
			if err != nil {
				fail(err)
				return
			}
			for k, ref := range batchRefs {
				chunks[ref.node][ref.chunk] = vectors[k]
				if remaining[ref.node].Add(-1) == 0 {
					progress.Increment(1)
				}
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// embedBatch embeds one batch with retry.
func (ep *embeddingProcessor) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, ep.logger, func() error {
		var err error
		vectors, err = ep.embedder.EmbedTexts(ctx, texts)
		return err
	}, ep.maxAttempts, ep.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", ep.maxAttempts, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(texts), len(vectors))
	}
	for _, v := range vectors {
		if err := core.ValidateVector(v, len(vectors[0])); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}
