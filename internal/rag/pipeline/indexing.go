// Package pipeline orchestrates ingestion (extract, chunk, embed, upsert)
// and retrieval (embed, search, assemble context, generate).
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragbase/internal/rag/chunker"
	"ragbase/internal/rag/embedding"
	"ragbase/internal/rag/extract"
	"ragbase/internal/rag/ragerr"
	"ragbase/internal/rag/schema"
	"ragbase/internal/rag/vectorstore"
	"ragbase/pkg/logger"
)

// IngestReport is the outcome of one upload. ChunksAdded stays meaningful
// even when Err-returning paths abort the upload partway: it counts the
// chunks in fully committed batches.
type IngestReport struct {
	FileName    string
	ChunksAdded int
	// Warning carries a partial-upsert notice when some records failed
	// after retries but others were stored.
	Warning string
}

// IngestionPipeline turns an uploaded file into stored vectors. One
// instance is shared across requests; all fields are set at construction
// and never mutated.
type IngestionPipeline struct {
	chunker     *chunker.Chunker
	embedder    embedding.Embedder
	store       vectorstore.VectorStore
	batchSize   int
	concurrency int
	maxFileSize int64
	log         *logger.Logger
}

// NewIngestionPipeline wires the ingestion stages together. batchSize
// bounds each upsert; concurrency bounds parallel embedding calls within
// one batch.
func NewIngestionPipeline(
	ck *chunker.Chunker,
	embedder embedding.Embedder,
	store vectorstore.VectorStore,
	batchSize, concurrency int,
	maxFileSize int64,
	log *logger.Logger,
) *IngestionPipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &IngestionPipeline{
		chunker:     ck,
		embedder:    embedder,
		store:       store,
		batchSize:   batchSize,
		concurrency: concurrency,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// Ingest validates, extracts, chunks, embeds and stores one document.
// It fails fast on the first unrecoverable error: extraction or embedding
// failure aborts the file (batches already upserted remain, there is no
// rollback), while a batch that partially fails to upsert only produces a
// warning and ingestion continues with the next batch.
func (p *IngestionPipeline) Ingest(ctx context.Context, fileName string, data []byte) (IngestReport, error) {
	report := IngestReport{FileName: fileName}
	log := p.log.WithField("upload_id", uuid.New().String()).WithField("file", fileName)

	// 1. Validate declared size and format before touching the bytes.
	if int64(len(data)) > p.maxFileSize {
		return report, ragerr.Validationf("file too large: %d bytes (max %d)", len(data), p.maxFileSize)
	}
	format, err := extract.DetectFormat(fileName)
	if err != nil {
		return report, err
	}

	// 2. Extract text. Failure here writes nothing.
	text, err := extract.Extract(format, data)
	if err != nil {
		return report, err
	}

	// 3. Chunk. Zero chunks is a valid terminal outcome, not an error.
	chunks := p.chunker.Split(fileName, text)
	if len(chunks) == 0 {
		log.Info("Document yielded no chunks, nothing to index")
		return report, nil
	}
	log.Info(fmt.Sprintf("Split into %d chunks", len(chunks)))

	// 4.+5. Embed and upsert batch by batch, so a mid-file failure
	// leaves a well-defined set of fully committed batches behind.
	var total schema.UpsertResult
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := p.embedBatch(ctx, batch); err != nil {
			log.Error(fmt.Sprintf("Embedding failed after %d committed chunks: %v", total.Succeeded, err))
			report.ChunksAdded = total.Succeeded
			return report, err
		}

		res, err := p.store.UpsertBatch(ctx, batch)
		total.Add(res)
		if err != nil {
			// Fatal store condition; committed counts still stand.
			report.ChunksAdded = total.Succeeded
			return report, err
		}
	}

	report.ChunksAdded = total.Succeeded
	if total.Failed > 0 {
		warn := &ragerr.PartialUpsertError{Succeeded: total.Succeeded, Failed: total.Failed}
		report.Warning = warn.Error()
		log.Warn(report.Warning)
	} else {
		log.Info(fmt.Sprintf("Indexed %d chunks", total.Succeeded))
	}
	return report, nil
}

// embedBatch fills in the embeddings of one batch with bounded
// concurrency. Chunk indices were assigned in source order before any
// concurrency, so IDs stay stable regardless of completion order.
func (p *IngestionPipeline) embedBatch(ctx context.Context, batch []*schema.Chunk) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)

	for _, c := range batch {
		c := c
		eg.Go(func() error {
			vec, err := p.embedder.Embed(gCtx, c.Text, embedding.TaskDocument)
			if err != nil {
				return err
			}
			c.Embedding = vec
			return nil
		})
	}
	return eg.Wait()
}
