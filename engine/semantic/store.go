// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, chunk upserts, and k-NN search over document embeddings.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/askdocs/askdocs-backend/engine/domain"
)

// VectorStore talks to Qdrant over gRPC. Safe for concurrent use; each
// upsert is atomic on the Qdrant side, so the write path and read path may
// run concurrently with an eventually-consistent view.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist. If it exists with a different vector size the configured embedder
// does not match the index contents; that is an operator error, reported as
// domain.ErrDimensionMismatch so main can refuse to start.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err == nil {
		existing := collectionDims(info)
		if existing != 0 && existing != uint64(dims) {
			return fmt.Errorf("semantic: collection %s has %d dims, embedder produces %d: %w",
				v.collection, existing, dims, domain.ErrDimensionMismatch)
		}
		return nil
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

func collectionDims(info *pb.GetCollectionInfoResponse) uint64 {
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0
	}
	return params.GetSize()
}

// Upsert stores chunk embeddings. Records carry their own IDs, so the same
// chunk text ingested twice under fresh IDs yields two entries; dedup is
// deliberately not this layer's job.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: recordPayload(r),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w: %w", len(records), domain.ErrIndexUnavailable, err)
	}
	return nil
}

// DeleteByDocID removes every chunk of a document. Used when a document is
// removed by its uploader.
func (v *VectorStore) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch("doc_id", docID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w: %w", docID, domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Search performs k-NN cosine search. An empty collection returns an empty
// slice, never an error; fewer than topK entries return what exists.
// Transport failures come back wrapped as domain.ErrIndexUnavailable.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w: %w", domain.ErrIndexUnavailable, err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = resultFromPoint(r)
	}
	return results, nil
}

func recordPayload(r VectorRecord) map[string]*pb.Value {
	return map[string]*pb.Value{
		"content":     {Kind: &pb.Value_StringValue{StringValue: r.Content}},
		"doc_id":      {Kind: &pb.Value_StringValue{StringValue: r.DocID}},
		"source":      {Kind: &pb.Value_StringValue{StringValue: r.Source}},
		"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.ChunkIndex)}},
	}
}

func resultFromPoint(p *pb.ScoredPoint) SearchResult {
	sr := SearchResult{
		ID:    p.GetId().GetUuid(),
		Score: p.GetScore(),
	}
	for k, val := range p.GetPayload() {
		switch k {
		case "content":
			sr.Content = val.GetStringValue()
		case "doc_id":
			sr.DocID = val.GetStringValue()
		case "source":
			sr.Source = val.GetStringValue()
		case "chunk_index":
			sr.ChunkIndex = int(val.GetIntegerValue())
		}
	}
	return sr
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
