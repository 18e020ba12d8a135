package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Giorgio/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "checkpoints"

// checkpointDoc 以 JSON 字符串保存历史，函数调用参数中的任意结构不受 BSON 键名限制。
type checkpointDoc struct {
	ThreadID  string    `bson:"threadId"`
	OwnerID   string    `bson:"ownerId"`
	Step      int       `bson:"step"`
	Contents  string    `bson:"contents"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func newCheckpointDoc(cp *models.Checkpoint) (*checkpointDoc, error) {
	raw, err := json.Marshal(cp.Contents)
	if err != nil {
		return nil, fmt.Errorf("序列化检查点失败: %w", err)
	}
	return &checkpointDoc{
		ThreadID:  cp.ThreadID,
		OwnerID:   cp.OwnerID,
		Step:      cp.Step,
		Contents:  string(raw),
		UpdatedAt: cp.UpdatedAt,
	}, nil
}

func (d *checkpointDoc) model() (*models.Checkpoint, error) {
	cp := &models.Checkpoint{
		ThreadID:  d.ThreadID,
		OwnerID:   d.OwnerID,
		Step:      d.Step,
		UpdatedAt: d.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(d.Contents), &cp.Contents); err != nil {
		return nil, fmt.Errorf("解析检查点失败: %w", err)
	}
	return cp, nil
}

// Mongo 每个线程保存一个检查点文档。
type Mongo struct {
	collection *mongo.Collection
}

// NewMongo 创建检查点存储并确保 threadId 唯一索引。
func NewMongo(ctx context.Context, db *mongo.Database) (*Mongo, error) {
	coll := db.Collection(collectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "threadId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("创建 %s 索引失败: %w", collectionName, err)
	}
	return &Mongo{collection: coll}, nil
}

func (m *Mongo) Load(ctx context.Context, threadID, ownerID string) (*models.Checkpoint, error) {
	var doc checkpointDoc
	err := m.collection.FindOne(ctx, bson.M{"threadId": threadID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp, err := doc.model()
	if err != nil {
		return nil, err
	}
	return checkOwner(cp, ownerID)
}

func (m *Mongo) Save(ctx context.Context, cp *models.Checkpoint) error {
	doc, err := newCheckpointDoc(cp)
	if err != nil {
		return err
	}
	// 线程属于其他用户时 upsert 会撞上 threadId 唯一索引
	_, err = m.collection.ReplaceOne(ctx,
		bson.M{"threadId": cp.ThreadID, "ownerId": cp.OwnerID},
		doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrNotFound
	}
	return err
}

func (m *Mongo) Delete(ctx context.Context, threadID string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"threadId": threadID})
	return err
}
