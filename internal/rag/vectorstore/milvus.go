package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"ragbase/internal/rag/ragerr"
	"ragbase/internal/rag/schema"
	"ragbase/pkg/backoff"
	"ragbase/pkg/logger"
)

// Schema fields of the Milvus collection.
const (
	fieldID         = "id"
	fieldEmbedding  = "embedding"
	fieldText       = "text"
	fieldFileName   = "file_name"
	fieldChunkIndex = "chunk_index"

	idMaxLength   = 128
	textMaxLength = 65535
	nameMaxLength = 512
)

// MilvusStore implements VectorStore on a Milvus collection with a cosine
// IVF_FLAT index.
type MilvusStore struct {
	client     client.Client
	collection string
	dimension  int
	retry      backoff.Policy
	log        *logger.Logger
}

// NewMilvusStore connects to Milvus and ensures the collection and its
// index exist and are loaded.
func NewMilvusStore(ctx context.Context, address, collection string, dimension int, retry backoff.Policy, log *logger.Logger) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to Milvus at %s: %w", address, err)
	}

	s := &MilvusStore{
		client:     c,
		collection: collection,
		dimension:  dimension,
		retry:      retry,
		log:        log,
	}
	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the Milvus connection.
func (s *MilvusStore) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// ensureCollection creates the collection and index when missing, then
// loads it for search.
func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("cannot check collection '%s': %w", s.collection, err)
	}

	if !exists {
		collSchema := entity.NewSchema().
			WithName(s.collection).
			WithDescription("document chunks and their embeddings").
			WithField(entity.NewField().WithName(fieldID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(idMaxLength).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dimension))).
			WithField(entity.NewField().WithName(fieldText).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(textMaxLength)).
			WithField(entity.NewField().WithName(fieldFileName).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(nameMaxLength)).
			WithField(entity.NewField().WithName(fieldChunkIndex).
				WithDataType(entity.FieldTypeInt64))

		if err := s.client.CreateCollection(ctx, collSchema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("cannot create collection '%s': %w", s.collection, err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
		if err != nil {
			return fmt.Errorf("cannot build index definition: %w", err)
		}
		if err := s.client.CreateIndex(ctx, s.collection, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("cannot create index on '%s': %w", fieldEmbedding, err)
		}
		s.log.Info(fmt.Sprintf("Created Milvus collection '%s' (dim=%d, metric=COSINE)", s.collection, s.dimension))
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("cannot load collection '%s': %w", s.collection, err)
	}
	return nil
}

// UpsertBatch writes the chunks by ID, retrying the sub-batch with
// exponential backoff before reporting it failed. Re-ingesting identical
// content hits the same IDs, so the last writer for an ID wins.
func (s *MilvusStore) UpsertBatch(ctx context.Context, chunks []*schema.Chunk) (schema.UpsertResult, error) {
	if len(chunks) == 0 {
		return schema.UpsertResult{}, nil
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	fileNames := make([]string, len(chunks))
	indexes := make([]int64, len(chunks))

	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return schema.UpsertResult{}, &ragerr.DimensionMismatchError{Want: s.dimension, Got: len(c.Embedding)}
		}
		ids[i] = c.ID
		vectors[i] = c.Embedding
		texts[i] = c.Text
		fileNames[i] = c.FileName
		indexes[i] = int64(c.Index)
	}

	upsert := func() error {
		_, err := s.client.Upsert(ctx, s.collection, "", /* default partition */
			entity.NewColumnVarChar(fieldID, ids),
			entity.NewColumnFloatVector(fieldEmbedding, s.dimension, vectors),
			entity.NewColumnVarChar(fieldText, texts),
			entity.NewColumnVarChar(fieldFileName, fileNames),
			entity.NewColumnInt64(fieldChunkIndex, indexes),
		)
		return err
	}

	err := s.retry.Retry(ctx, upsert, func(err error) bool {
		// Context expiry will not heal on retry within the same request.
		return ctx.Err() == nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return schema.UpsertResult{Failed: len(chunks)}, ragerr.Wrap(ragerr.StageStore, err)
		}
		s.log.Error(fmt.Sprintf("Upsert batch of %d failed after retries: %v", len(chunks), err))
		return schema.UpsertResult{Failed: len(chunks)}, nil
	}
	return schema.UpsertResult{Succeeded: len(chunks)}, nil
}

// Query searches the collection for the topK nearest chunks by cosine
// similarity.
func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int) ([]schema.Match, error) {
	if topK < 1 {
		return nil, ragerr.Validationf("topK must be at least 1, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, &ragerr.DimensionMismatchError{Want: s.dimension, Got: len(vector)}
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(10)
	results, err := s.client.Search(
		ctx, s.collection, nil, "",
		[]string{fieldID, fieldText, fieldFileName, fieldChunkIndex},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.StageStore, err)
	}

	var matches []schema.Match
	for _, res := range results {
		idCol, _ := findColumn(res.Fields, fieldID).(*entity.ColumnVarChar)
		textCol, _ := findColumn(res.Fields, fieldText).(*entity.ColumnVarChar)
		nameCol, _ := findColumn(res.Fields, fieldFileName).(*entity.ColumnVarChar)
		indexCol, _ := findColumn(res.Fields, fieldChunkIndex).(*entity.ColumnInt64)
		if idCol == nil {
			continue
		}

		for i := 0; i < res.ResultCount; i++ {
			m := schema.Match{
				ID:    idCol.Data()[i],
				Score: res.Scores[i],
			}
			if textCol != nil {
				m.Text = textCol.Data()[i]
			}
			if nameCol != nil {
				m.FileName = nameCol.Data()[i]
			}
			if indexCol != nil {
				m.Index = int(indexCol.Data()[i])
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// ClearAll drops and recreates the collection. Delete-by-expression on a
// VarChar primary key is version-sensitive in Milvus; drop and recreate
// reaches the same end state through one supported path.
func (s *MilvusStore) ClearAll(ctx context.Context) error {
	if err := s.client.DropCollection(ctx, s.collection); err != nil {
		return ragerr.Wrap(ragerr.StageStore, fmt.Errorf("cannot drop collection '%s': %w", s.collection, err))
	}
	if err := s.ensureCollection(ctx); err != nil {
		return ragerr.Wrap(ragerr.StageStore, err)
	}
	s.log.Info(fmt.Sprintf("Cleared Milvus collection '%s'", s.collection))
	return nil
}

// Count returns the stored record count from collection statistics.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, ragerr.Wrap(ragerr.StageStore, err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ragerr.Wrap(ragerr.StageStore, fmt.Errorf("unexpected row_count value %q: %w", raw, err))
	}
	return n, nil
}

func findColumn(fields []entity.Column, name string) entity.Column {
	for _, f := range fields {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

var _ VectorStore = (*MilvusStore)(nil)
