package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mesami8/llmchatapp/internal/domain"
)

const (
	defaultDatabase = "llm_chat_app"
	collectionName  = "conversations"
	connectTimeout  = 10 * time.Second
)

// Store persists conversations in a MongoDB collection, one document per
// conversation with the messages embedded.
type Store struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewStore connects to MongoDB and pings it, so a dead store is detected at
// startup instead of on the first save.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("connection string is required for Mongo store")
	}
	if database == "" {
		database = defaultDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &Store{
		client: client,
		col:    client.Database(database).Collection(collectionName),
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ─────────────────────────────────────────
// Mongo document types
// ─────────────────────────────────────────

type messageDoc struct {
	Role    string `bson:"role"`
	Content string `bson:"content"`
}

type conversationDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID   string             `bson:"owner_id"`
	Messages  []messageDoc       `bson:"messages"`
	ModelUsed string             `bson:"model_used"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func toMessageDocs(messages []domain.Message) []messageDoc {
	out := make([]messageDoc, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageDoc{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func fromMessageDocs(docs []messageDoc) []domain.Message {
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Message{Role: domain.Role(d.Role), Content: d.Content})
	}
	return out
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

func (s *Store) Create(ctx context.Context, owner domain.OwnerID, messages []domain.Message, modelUsed string) (domain.ConversationID, error) {
	now := time.Now().UTC()
	doc := conversationDoc{
		OwnerID:   string(owner),
		Messages:  toMessageDocs(messages),
		ModelUsed: modelUsed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := s.col.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("mongo Create: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongo Create: unexpected inserted id type %T", res.InsertedID)
	}
	return domain.ConversationID(oid.Hex()), nil
}

func (s *Store) Update(ctx context.Context, owner domain.OwnerID, id domain.ConversationID, messages []domain.Message) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		// A malformed id cannot match any document; treated as absent.
		return false, nil
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid, "owner_id": string(owner)},
		bson.M{"$set": bson.M{
			"messages":   toMessageDocs(messages),
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo Update: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) ListRecent(ctx context.Context, owner domain.OwnerID, limit int) ([]domain.ConversationSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cur, err := s.col.Find(ctx, bson.M{"owner_id": string(owner)}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo ListRecent: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.ConversationSummary
	for cur.Next(ctx) {
		var doc conversationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo ListRecent decode: %w", err)
		}
		out = append(out, domain.ConversationSummary{
			ID:        domain.ConversationID(doc.ID.Hex()),
			Preview:   domain.Preview(fromMessageDocs(doc.Messages)),
			ModelUsed: doc.ModelUsed,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo ListRecent cursor: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, owner domain.OwnerID, id domain.ConversationID) (*domain.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return nil, nil
	}

	var doc conversationDoc
	err = s.col.FindOne(ctx, bson.M{"_id": oid, "owner_id": string(owner)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo Get: %w", err)
	}

	return &domain.Conversation{
		ID:        domain.ConversationID(doc.ID.Hex()),
		OwnerID:   domain.OwnerID(doc.OwnerID),
		Messages:  fromMessageDocs(doc.Messages),
		ModelUsed: doc.ModelUsed,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *Store) Delete(ctx context.Context, owner domain.OwnerID, id domain.ConversationID) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return false, nil
	}

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": oid, "owner_id": string(owner)})
	if err != nil {
		return false, fmt.Errorf("mongo Delete: %w", err)
	}
	return res.DeletedCount > 0, nil
}
