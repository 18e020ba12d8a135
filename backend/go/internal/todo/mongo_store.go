package todo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"Giorgio/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "todo_lists"

// toggleRetries 是并发翻转同一任务时的最大重试次数。
const toggleRetries = 3

type todoListDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	models.TodoList `bson:",inline"`
}

func (d *todoListDoc) model() *models.TodoList {
	l := d.TodoList
	l.ID = d.ID.Hex()
	if l.Tasks == nil {
		l.Tasks = []models.Task{}
	}
	return &l
}

// MongoStore 把每个清单保存为一个文档，任务内嵌在 tasks 数组中。
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoStore 创建 MongoDB 清单存储并确保索引存在。
//
// 参数:
//
//	ctx: 创建索引时使用的上下文。
//	db: 目标数据库。
//
// 返回值:
//
//	*MongoStore: 存储实例。
//	error: 创建索引失败时返回。
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{collection: db.Collection(collectionName), now: time.Now}
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("创建 %s 索引失败: %w", collectionName, err)
	}
	return s, nil
}

func (s *MongoStore) Create(ctx context.Context, ownerID string, in models.NewTodoList) (*models.TodoList, error) {
	now := s.now().UTC()
	doc := todoListDoc{TodoList: models.TodoList{
		OwnerID:   ownerID,
		Name:      in.Name,
		Emoji:     in.Emoji,
		Tasks:     []models.Task{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	for _, t := range in.Tasks {
		doc.Tasks = append(doc.Tasks, prepareTask(t, primitive.NewObjectID().Hex(), now))
	}

	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.model(), nil
}

func (s *MongoStore) FindAll(ctx context.Context, ownerID string) ([]models.TodoList, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []todoListDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.TodoList, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].model())
	}
	return out, nil
}

func (s *MongoStore) FindByName(ctx context.Context, ownerID, name string) (*models.TodoList, error) {
	filter := bson.M{
		"ownerId": ownerID,
		"name":    primitive.Regex{Pattern: "^" + regexp.QuoteMeta(name) + "$", Options: "i"},
	}
	return s.findOne(ctx, filter)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.TodoList, error) {
	var doc todoListDoc
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return doc.model(), nil
}

func listFilter(ownerID, listID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(listID)
	if err != nil {
		return nil, models.ErrInvalidID
	}
	return bson.M{"_id": oid, "ownerId": ownerID}, nil
}

func (s *MongoStore) AddTask(ctx context.Context, ownerID, listID string, task models.Task) (*models.TodoList, error) {
	filter, err := listFilter(ownerID, listID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	update := bson.M{
		"$push": bson.M{"tasks": prepareTask(task, primitive.NewObjectID().Hex(), now)},
		"$set":  bson.M{"updatedAt": now},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

// ToggleTask 只在任务状态仍为读取时的值时写入，避免并发翻转互相覆盖。
func (s *MongoStore) ToggleTask(ctx context.Context, ownerID, listID, taskID string) (*models.TodoList, error) {
	filter, err := listFilter(ownerID, listID)
	if err != nil {
		return nil, err
	}

	for i := 0; i < toggleRetries; i++ {
		current, err := s.findOne(ctx, filter)
		if err != nil {
			return nil, err
		}
		task := current.FindTask(taskID)
		if task == nil {
			return nil, models.ErrNotFound
		}

		guarded := bson.M{
			"_id":     filter["_id"],
			"ownerId": ownerID,
			"tasks":   bson.M{"$elemMatch": bson.M{"id": taskID, "completed": task.Completed}},
		}
		update := bson.M{"$set": bson.M{
			"tasks.$.completed": !task.Completed,
			"updatedAt":         s.now().UTC(),
		}}
		updated, err := s.findOneAndUpdate(ctx, guarded, update)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		return updated, err
	}
	return nil, fmt.Errorf("任务 %s 状态频繁变化，请重试", taskID)
}

func (s *MongoStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.TodoList, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc todoListDoc
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return doc.model(), nil
}
