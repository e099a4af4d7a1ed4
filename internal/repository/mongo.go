package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

const (
	messagesCollection = "messages"
	countersCollection = "counters"
	messagesCounterID  = "messages"
)

// Mongo stores messages in the "messages" collection. Ids are allocated from a
// counter document so they keep the insertion order of an auto-increment column.
type Mongo struct {
	messages *mongo.Collection
	counters *mongo.Collection
	timeout  time.Duration
}

// Connect opens a client and checks the server is reachable.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func NewMongo(ctx context.Context, db *mongo.Database, timeout time.Duration) (*Mongo, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	m := &Mongo{
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
		timeout:  timeout,
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "time", Value: -1}},
		Options: options.Index().SetName("time_idx"),
	}
	if _, err := m.messages.Indexes().CreateOne(cctx, ix); err != nil {
		return nil, fmt.Errorf("create message index: %w", err)
	}
	return m, nil
}

type counter struct {
	Seq int64 `bson:"seq"`
}

func (m *Mongo) Insert(ctx context.Context, user, msg string, ts int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var c counter
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messagesCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("allocate message id: %w", err)
	}

	doc := domain.Message{ID: c.Seq, User: user, Msg: msg, Time: ts}
	if _, err := m.messages.InsertOne(ctx, doc); err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return c.Seq, nil
}

func (m *Mongo) Paginate(ctx context.Context, page, perPage int) (domain.Page, error) {
	page, perPage = domain.NormalizePage(page, perPage)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	total, err := m.messages.CountDocuments(ctx, bson.D{})
	if err != nil {
		return domain.Page{}, fmt.Errorf("count messages: %w", err)
	}

	cur, err := m.messages.Find(ctx, bson.D{}, pageOptions(page, perPage))
	if err != nil {
		return domain.Page{}, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]domain.Message, 0, perPage)
	if err := cur.All(ctx, &out); err != nil {
		return domain.Page{}, fmt.Errorf("decode messages: %w", err)
	}
	return domain.Page{
		Messages:   out,
		Pagination: domain.NewPagination(page, perPage, total),
	}, nil
}

func pageOptions(page, perPage int) *options.FindOptions {
	page, perPage = domain.NormalizePage(page, perPage)
	return options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(domain.Offset(page, perPage)).
		SetLimit(int64(perPage))
}
