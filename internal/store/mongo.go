package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/contentforge/api/internal/model"
)

// ConnectMongo establishes a connection to MongoDB and verifies it with a ping
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// DisconnectMongo closes the MongoDB connection
func DisconnectMongo(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// contentDocument is the stored shape of a content record
type contentDocument struct {
	ID               primitive.ObjectID     `bson:"_id,omitempty"`
	UserID           string                 `bson:"userId"`
	Title            string                 `bson:"title"`
	ContentType      model.ContentType      `bson:"contentType"`
	Prompt           string                 `bson:"prompt"`
	GeneratedText    string                 `bson:"generatedText"`
	Status           model.ContentStatus    `bson:"status"`
	GenerationStatus model.GenerationStatus `bson:"generationStatus"`
	FailureReason    string                 `bson:"failureReason,omitempty"`
	JobID            string                 `bson:"jobId,omitempty"`
	IsDeleted        bool                   `bson:"isDeleted"`
	CreatedAt        time.Time              `bson:"createdAt"`
	UpdatedAt        time.Time              `bson:"updatedAt"`
}

func (d *contentDocument) toModel() *model.Content {
	return &model.Content{
		ID:               d.ID.Hex(),
		UserID:           d.UserID,
		Title:            d.Title,
		ContentType:      d.ContentType,
		Prompt:           d.Prompt,
		GeneratedText:    d.GeneratedText,
		Status:           d.Status,
		GenerationStatus: d.GenerationStatus,
		FailureReason:    d.FailureReason,
		JobID:            d.JobID,
		IsDeleted:        d.IsDeleted,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// MongoContentStore stores content records in a MongoDB collection
type MongoContentStore struct {
	col *mongo.Collection
}

func NewMongoContentStore(col *mongo.Collection) *MongoContentStore {
	return &MongoContentStore{col: col}
}

// EnsureIndexes creates the indexes used by listings
func (s *MongoContentStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isDeleted", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "generationStatus", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create content indexes: %w", err)
	}
	return nil
}

func (s *MongoContentStore) Create(ctx context.Context, content *model.Content) error {
	now := time.Now().UTC()
	doc := contentDocument{
		ID:               primitive.NewObjectID(),
		UserID:           content.UserID,
		Title:            content.Title,
		ContentType:      content.ContentType,
		Prompt:           content.Prompt,
		GeneratedText:    content.GeneratedText,
		Status:           content.Status,
		GenerationStatus: content.GenerationStatus,
		JobID:            content.JobID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if doc.Status == "" {
		doc.Status = model.ContentStatusDraft
	}
	if doc.GenerationStatus == "" {
		doc.GenerationStatus = model.GenerationStatusPending
	}

	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}

	content.ID = doc.ID.Hex()
	content.Status = doc.Status
	content.GenerationStatus = doc.GenerationStatus
	content.CreatedAt = now
	content.UpdatedAt = now
	return nil
}

func (s *MongoContentStore) Get(ctx context.Context, id string) (*model.Content, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrContentNotFound
	}

	var doc contentDocument
	err = s.col.FindOne(ctx, bson.M{"_id": oid, "isDeleted": false}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoContentStore) List(ctx context.Context, userID string, filter model.ContentListFilter) ([]*model.Content, int64, error) {
	query := bson.M{"userId": userID, "isDeleted": false}
	if filter.ContentType != "" {
		query["contentType"] = filter.ContentType
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.GenerationStatus != "" {
		query["generationStatus"] = filter.GenerationStatus
	}

	total, err := s.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count contents: %w", err)
	}

	page, limit := normalizePage(filter)
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contents: %w", err)
	}
	defer cursor.Close(ctx)

	contents := make([]*model.Content, 0, limit)
	for cursor.Next(ctx) {
		var doc contentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode content: %w", err)
		}
		contents = append(contents, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate contents: %w", err)
	}
	return contents, total, nil
}

func (s *MongoContentStore) Update(ctx context.Context, id string, req *model.UpdateContentRequest) error {
	set := bson.M{}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.ContentType != nil {
		set["contentType"] = *req.ContentType
	}
	if req.Prompt != nil {
		set["prompt"] = *req.Prompt
	}
	if req.GeneratedText != nil {
		set["generatedText"] = *req.GeneratedText
	}
	if req.Status != nil {
		set["status"] = *req.Status
	}
	return s.update(ctx, id, bson.M{"$set": set})
}

func (s *MongoContentStore) SetJobID(ctx context.Context, id, jobID string) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"jobId": jobID}})
}

func (s *MongoContentStore) MarkPending(ctx context.Context, id string) error {
	matched, err := s.updateWhere(ctx, id,
		bson.M{"generationStatus": bson.M{"$in": bson.A{model.GenerationStatusCompleted, model.GenerationStatusFailed}}},
		bson.M{
			"$set":   bson.M{"generationStatus": model.GenerationStatusPending},
			"$unset": bson.M{"failureReason": ""},
		})
	if err != nil || matched > 0 {
		return err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return model.ErrGenerationInProgress
}

func (s *MongoContentStore) RevertPending(ctx context.Context, id string, status model.GenerationStatus, reason string) error {
	update := bson.M{"$set": bson.M{"generationStatus": status}}
	if status == model.GenerationStatusFailed {
		update["$set"].(bson.M)["failureReason"] = reason
	} else {
		update["$unset"] = bson.M{"failureReason": ""}
	}
	_, err := s.updateWhere(ctx, id, bson.M{"generationStatus": model.GenerationStatusPending}, update)
	return err
}

func (s *MongoContentStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, bson.M{
		"$set":   bson.M{"generationStatus": model.GenerationStatusProcessing},
		"$unset": bson.M{"failureReason": ""},
	})
}

func (s *MongoContentStore) MarkCompleted(ctx context.Context, id, generatedText string) error {
	return s.update(ctx, id, bson.M{
		"$set": bson.M{
			"generatedText":    generatedText,
			"generationStatus": model.GenerationStatusCompleted,
		},
		"$unset": bson.M{"failureReason": ""},
	})
}

func (s *MongoContentStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, bson.M{
		"$set": bson.M{
			"generationStatus": model.GenerationStatusFailed,
			"failureReason":    reason,
		},
	})
}

func (s *MongoContentStore) SoftDelete(ctx context.Context, id string) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"isDeleted": true}})
}

func (s *MongoContentStore) update(ctx context.Context, id string, update bson.M) error {
	matched, err := s.updateWhere(ctx, id, nil, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return model.ErrContentNotFound
	}
	return nil
}

// updateWhere applies update to a live record that also matches cond
func (s *MongoContentStore) updateWhere(ctx context.Context, id string, cond, update bson.M) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, model.ErrContentNotFound
	}

	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updatedAt"] = time.Now().UTC()

	filter := bson.M{"_id": oid, "isDeleted": false}
	for k, v := range cond {
		filter[k] = v
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update content: %w", err)
	}
	return res.MatchedCount, nil
}
