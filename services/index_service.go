package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"esgdocs/models"
)

// IndexStore is the durable mapping from content address to (vector, text,
// metadata). Upsert is keyed by address, so it is the authoritative dedup
// boundary: a concurrent duplicate insert degrades to a harmless overwrite.
type IndexStore interface {
	// Upsert adds entries; addresses already present are overwritten in place.
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	// ExistingIDs returns every stored content address, used to skip chunks
	// before embedding cost is paid.
	ExistingIDs(ctx context.Context) (map[string]bool, error)
	// Query returns the k nearest entries under the optional exact-match
	// metadata filter, with their stored embeddings.
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]models.SearchHit, error)
	Count(ctx context.Context) (int, error)
	// Reset drops all entries, for explicit clear-and-rebuild ingestion.
	Reset(ctx context.Context) error
}

// ChromaStore implements IndexStore on a ChromaDB collection.
type ChromaStore struct {
	client         chromago.Client
	collection     chromago.Collection
	collectionName string
}

// NewChromaStore connects to ChromaDB and gets or creates the named
// collection. The server owns the on-disk persistence; the collection name
// namespaces this engine's entries.
func NewChromaStore(client chromago.Client, collectionName string) (*ChromaStore, error) {
	collection, err := getOrCreateCollection(client, collectionName)
	if err != nil {
		return nil, err
	}
	return &ChromaStore{
		client:         client,
		collection:     collection,
		collectionName: collectionName,
	}, nil
}

func getOrCreateCollection(client chromago.Client, name string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		context.Background(),
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "ESG report chunk index"),
				chromago.NewStringAttribute("created_by", "esgdocs"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", name, err)
	}
	return collection, nil
}

func (s *ChromaStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	for i, chunk := range chunks {
		attrs := []*chromago.MetaAttribute{
			chromago.NewStringAttribute("source_file", chunk.Metadata.SourceFile),
			chromago.NewStringAttribute("source_type", chunk.Metadata.SourceType),
			chromago.NewIntAttribute("page", int64(chunk.Metadata.Page)),
			chromago.NewBoolAttribute("ocr", chunk.Metadata.OCR),
		}
		if chunk.Metadata.Company != "" {
			attrs = append(attrs, chromago.NewStringAttribute("company", chunk.Metadata.Company))
		}
		if chunk.Metadata.Year != "" {
			attrs = append(attrs, chromago.NewStringAttribute("year", chunk.Metadata.Year))
		}
		if chunk.Metadata.Country != "" {
			attrs = append(attrs, chromago.NewStringAttribute("country", chunk.Metadata.Country))
		}
		if chunk.Metadata.Parser != "" {
			attrs = append(attrs, chromago.NewStringAttribute("parser", chunk.Metadata.Parser))
		}

		err := s.collection.Upsert(ctx,
			chromago.WithIDs(chromago.DocumentID(chunk.ID)),
			chromago.WithTexts(chunk.Text),
			chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vectors[i])),
			chromago.WithMetadatas(chromago.NewDocumentMetadata(attrs...)),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

func (s *ChromaStore) ExistingIDs(ctx context.Context) (map[string]bool, error) {
	results, err := s.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing ids: %w", err)
	}
	ids := results.GetIDs()
	existing := make(map[string]bool, len(ids))
	for _, id := range ids {
		existing[string(id)] = true
	}
	return existing, nil
}

func (s *ChromaStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]models.SearchHit, error) {
	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.IncludeEmbeddings),
	}
	if where := buildWhere(filter); where != nil {
		opts = append(opts, chromago.WithWhereQuery(where))
	}

	results, err := s.collection.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	idGroups := results.GetIDGroups()
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	embeddingGroups := results.GetEmbeddingsGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}

	hits := make([]models.SearchHit, 0, len(documentGroups[0]))
	for i, doc := range documentGroups[0] {
		if doc.ContentString() == "" {
			continue
		}
		hit := models.SearchHit{
			Chunk: models.Chunk{
				Text: doc.ContentString(),
			},
		}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			hit.Chunk.ID = string(idGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			hit.Chunk.Metadata = metadataFromDocument(metadataGroups[0][i])
		}
		if len(embeddingGroups) > 0 && i < len(embeddingGroups[0]) && embeddingGroups[0][i] != nil {
			hit.Embedding = embeddingGroups[0][i].ContentAsFloat32()
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

// Reset drops and recreates the collection.
func (s *ChromaStore) Reset(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.collectionName, err)
	}
	collection, err := getOrCreateCollection(s.client, s.collectionName)
	if err != nil {
		return err
	}
	s.collection = collection
	return nil
}

func buildWhere(filter map[string]string) chromago.WhereClause {
	if len(filter) == 0 {
		return nil
	}
	clauses := make([]chromago.WhereClause, 0, len(filter))
	for key, value := range filter {
		clauses = append(clauses, chromago.EqString(key, value))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return chromago.And(clauses...)
}

// metadataFromDocument converts chroma's metadata type back into our chunk
// metadata. The DocumentMetadata struct exposes no map accessor, so it goes
// through JSON, same as the store writes it.
func metadataFromDocument(meta chromago.DocumentMetadata) models.ChunkMetadata {
	var out models.ChunkMetadata
	if meta == nil {
		return out
	}
	jsonBytes, err := json.Marshal(meta)
	if err != nil {
		log.Printf("WARN: could not marshal chunk metadata: %v", err)
		return out
	}
	var metaMap map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &metaMap); err != nil {
		log.Printf("WARN: could not unmarshal chunk metadata: %v", err)
		return out
	}
	out.SourceFile, _ = metaMap["source_file"].(string)
	out.SourceType, _ = metaMap["source_type"].(string)
	out.Company, _ = metaMap["company"].(string)
	out.Year, _ = metaMap["year"].(string)
	out.Country, _ = metaMap["country"].(string)
	out.Parser, _ = metaMap["parser"].(string)
	out.OCR, _ = metaMap["ocr"].(bool)
	switch page := metaMap["page"].(type) {
	case float64:
		out.Page = int(page)
	case string:
		out.Page, _ = strconv.Atoi(page)
	}
	return out
}
