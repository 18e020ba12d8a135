package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Giorgio/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "conversations"

// MongoStore 把每个对话保存为一个文档。
type MongoStore struct {
	collection *mongo.Collection
	describe   Describer
	now        func() time.Time
}

// NewMongoStore 创建存储并确保 threadId 唯一索引和 ownerId 查询索引。
func NewMongoStore(ctx context.Context, db *mongo.Database, describe Describer) (*MongoStore, error) {
	coll := db.Collection(collectionName)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "threadId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "lastUpdated", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("创建 %s 索引失败: %w", collectionName, err)
	}
	if describe == nil {
		describe = StaticDescriber
	}
	return &MongoStore{collection: coll, describe: describe, now: time.Now}, nil
}

func (s *MongoStore) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// appendPipeline 在一次更新里追加两条消息、计数加一轮，并让 lastUpdated 至少前进 1ms。
// 消息用 $literal 包裹，避免以 $ 开头的内容被当作字段路径。
func appendPipeline(userMessage, reply string, now time.Time) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "messages", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			"$messages",
			bson.D{{Key: "$literal", Value: newMessages(userMessage, reply, now)}},
		}}}},
		{Key: "messageCount", Value: bson.D{{Key: "$add", Value: bson.A{"$messageCount", 2}}}},
		{Key: "step", Value: bson.D{{Key: "$add", Value: bson.A{"$step", 1}}}},
		{Key: "lastUpdated", Value: bson.D{{Key: "$max", Value: bson.A{
			now,
			bson.D{{Key: "$add", Value: bson.A{"$lastUpdated", 1}}},
		}}}},
	}}}}
}

func (s *MongoStore) update(ctx context.Context, ownerID, threadID, userMessage, reply string) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"threadId": threadID, "ownerId": ownerID},
		appendPipeline(userMessage, reply, s.clock()))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) Append(ctx context.Context, ownerID, threadID, userMessage, reply string) error {
	ok, err := s.update(ctx, ownerID, threadID, userMessage, reply)
	if err != nil || ok {
		return err
	}

	now := s.clock()
	doc := models.Conversation{
		ThreadID:     threadID,
		OwnerID:      ownerID,
		Messages:     newMessages(userMessage, reply, now),
		MessageCount: 2,
		Step:         1,
		Description:  s.describe(ctx, userMessage, reply),
		CreatedAt:    now,
		LastUpdated:  now,
	}
	_, err = s.collection.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}

	// 并发创建时重试一次更新；线程属于其他用户时不写入。
	ok, err = s.update(ctx, ownerID, threadID, userMessage, reply)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastUpdated", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.Conversation{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, threadID, ownerID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.collection.FindOne(ctx, bson.M{"threadId": threadID, "ownerId": ownerID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (s *MongoStore) Delete(ctx context.Context, threadID, ownerID string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"threadId": threadID, "ownerId": ownerID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) Owner(ctx context.Context, threadID string) (string, error) {
	var doc struct {
		OwnerID string `bson:"ownerId"`
	}
	opts := options.FindOne().SetProjection(bson.M{"ownerId": 1})
	err := s.collection.FindOne(ctx, bson.M{"threadId": threadID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return doc.OwnerID, nil
}
