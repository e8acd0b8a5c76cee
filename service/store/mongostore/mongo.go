package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"TalkWire/module/chat/model"
	"TalkWire/service/store"
	"TalkWire/tools/errs"
	"TalkWire/tools/ids"
)

// Config represents the MongoDB configuration.
type Config struct {
	Uri         string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
	MaxRetry    int
}

func (c *Config) norm() {
	if c.Database == "" {
		c.Database = "talkwire"
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 100
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 3
	}
	if c.AuthSource == "" {
		c.AuthSource = "admin"
	}
}

type Store struct {
	cli      *mongo.Client
	db       *mongo.Database
	messages *mongo.Collection
	users    *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New connects with bounded retries and ensures the message indexes.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	cfg.norm()
	if cfg.Uri == "" {
		return nil, errs.ErrArgs.WrapMsg("mongo uri is required")
	}

	opts := options.Client().ApplyURI(cfg.Uri)
	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connect(ctx, opts)
		if err == nil {
			break
		}
		time.Sleep(time.Second / 2)
	}
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("connect mongodb", "uri", cfg.Uri, "err", err)
	}

	db := cli.Database(cfg.Database)
	s := &Store{
		cli:      cli,
		db:       db,
		messages: db.Collection(model.MsgTableName),
		users:    db.Collection(model.UserTableName),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(cctx, nil); err != nil {
		_ = cli.Disconnect(cctx)
		return nil, err
	}
	return cli, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	// One compound index per direction covers ListBetween's $or branches
	// and MarkRead's filter.
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	if err != nil {
		return errs.ErrInternal.WrapMsg("create message indexes", "err", err)
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = ids.GenerateString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return errs.ErrPersistenceFailure.WrapMsg("insert message", "id", m.ID, "err", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("find message", "id", id, "err", err)
	}
	return &m, nil
}

func (s *Store) ListBetween(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	}}
	cur, err := s.messages.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("list messages", "err", err)
	}
	defer cur.Close(ctx)

	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("decode messages", "err", err)
	}
	return out, nil
}

func (s *Store) LastBetween(ctx context.Context, userA, userB string) (*model.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	}}
	var m model.Message
	err := s.messages.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("last message", "err", err)
	}
	return &m, nil
}

func (s *Store) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, errs.ErrPersistenceFailure.WrapMsg("mark read", "err", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) ListUsers(ctx context.Context, exceptID string) ([]*model.User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$ne": exceptID}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("list users", "err", err)
	}
	defer cur.Close(ctx)

	var out []*model.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("decode users", "err", err)
	}
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.cli.Disconnect(ctx)
}
