// Package store persists users, chat history, and document metadata in
// MongoDB. The vector index holds the searchable chunks; this package holds
// everything else, and a document's metadata is only written here after its
// chunks are indexed, so a listed document is always a searchable one.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	usersCollection   = "users"
	historyCollection = "chat_history"
	pdfsCollection    = "pdfs"
)

// DefaultHistoryLimit bounds how many prior turns a single answer sees.
const DefaultHistoryLimit = 20

var (
	// ErrNotFound reports a missing user or document.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateEmail reports a registration against an existing email.
	ErrDuplicateEmail = errors.New("store: email already registered")
)

// User is a registered account. Email is the identity key.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	CreatedAt    time.Time          `bson:"created_at"`
}

// ChatTurn is one question/answer pair belonging to a user.
type ChatTurn struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserEmail string             `bson:"user_email"`
	Question  string             `bson:"question"`
	Answer    string             `bson:"answer"`
	CreatedAt time.Time          `bson:"created_at"`
}

// PDFMeta records an indexed document. Written only after the chunks are in
// the vector index.
type PDFMeta struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	DocID         string             `bson:"doc_id"`
	Filename      string             `bson:"filename"`
	UploadedBy    string             `bson:"uploaded_by"`
	ChunksIndexed int                `bson:"chunks_indexed"`
	UploadedAt    time.Time          `bson:"uploaded_at"`
}

// Store wraps a Mongo database with the application's persistence
// operations.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// New connects to MongoDB and pings it. The caller owns the lifecycle and
// must Close when done.
func New(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	logger.Info("store: connected", "db", dbName)
	return &Store{client: client, db: client.Database(dbName), logger: logger}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the collection indexes at startup. Unique email on
// users, user lookup on history, uploader lookup plus unique doc_id on pdfs.
// Safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	if _, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("store: users index: %w", err)
	}
	if _, err := s.db.Collection(historyCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_email", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("store: history index: %w", err)
	}
	if _, err := s.db.Collection(pdfsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uploaded_by", Value: 1}}},
		{Keys: bson.D{{Key: "doc_id", Value: 1}}, Options: unique},
	}); err != nil {
		return fmt.Errorf("store: pdfs index: %w", err)
	}
	return nil
}

// CreateUser inserts a new account. Email collisions surface as
// ErrDuplicateEmail via the unique index, not a pre-read.
func (s *Store) CreateUser(ctx context.Context, user User) (User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Collection(usersCollection).InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("store: create user: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return user, nil
}

// UserByEmail fetches an account by its email.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.Collection(usersCollection).
		FindOne(ctx, bson.M{"email": email}).
		Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: user by email: %w", err)
	}
	return user, nil
}

// AppendChatTurn records one answered question for a user.
func (s *Store) AppendChatTurn(ctx context.Context, turn ChatTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.Collection(historyCollection).InsertOne(ctx, turn); err != nil {
		return fmt.Errorf("store: append chat turn: %w", err)
	}
	return nil
}

// History returns a user's most recent turns in chronological order. A
// non-positive limit falls back to DefaultHistoryLimit.
func (s *Store) History(ctx context.Context, userEmail string, limit int) ([]ChatTurn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	// Fetch newest-first to honor the limit, then restore order in memory.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.db.Collection(historyCollection).Find(ctx, bson.M{"user_email": userEmail}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer cur.Close(ctx)

	var turns []ChatTurn
	if err := cur.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("store: history decode: %w", err)
	}
	reverse(turns)
	return turns, nil
}

// SavePDF records an indexed document's metadata.
func (s *Store) SavePDF(ctx context.Context, meta PDFMeta) error {
	if meta.UploadedAt.IsZero() {
		meta.UploadedAt = time.Now().UTC()
	}
	if _, err := s.db.Collection(pdfsCollection).InsertOne(ctx, meta); err != nil {
		return fmt.Errorf("store: save pdf: %w", err)
	}
	return nil
}

// PDFsByUploader lists the documents a user has uploaded, newest first.
func (s *Store) PDFsByUploader(ctx context.Context, email string) ([]PDFMeta, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cur, err := s.db.Collection(pdfsCollection).Find(ctx, bson.M{"uploaded_by": email}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: pdfs by uploader: %w", err)
	}
	defer cur.Close(ctx)

	var metas []PDFMeta
	if err := cur.All(ctx, &metas); err != nil {
		return nil, fmt.Errorf("store: pdfs decode: %w", err)
	}
	return metas, nil
}

func reverse(turns []ChatTurn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
