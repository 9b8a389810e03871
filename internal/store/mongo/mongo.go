package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/store"
)

const collectionName = "submissions"

type lineDocument struct {
	UnitID         int64  `bson:"unit_id"`
	DisplayName    string `bson:"display_name"`
	ProductName    string `bson:"product_name,omitempty"`
	ProductType    string `bson:"product_type,omitempty"`
	UnitPrice      int64  `bson:"unit_price"`
	AvailableStock int    `bson:"available_stock"`
	Qty            int    `bson:"qty"`
}

type submissionDocument struct {
	ID         string         `bson:"_id"`
	TerminalID string         `bson:"terminal_id"`
	Kind       string         `bson:"kind"`
	Vendor     string         `bson:"vendor,omitempty"`
	ParentID   int64          `bson:"parent_id"`
	Lines      []lineDocument `bson:"lines"`
	Cursor     int            `bson:"cursor"`
	Status     string         `bson:"status"`
	Error      string         `bson:"error,omitempty"`
	StartedAt  time.Time      `bson:"started_at"`
	FinishedAt *time.Time     `bson:"finished_at,omitempty"`
}

type Store struct {
	client      *mongo.Client
	submissions *mongo.Collection
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Store{
		client:      client,
		submissions: client.Database(database).Collection(collectionName),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the terminal/started_at index used by List.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.submissions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "terminal_id", Value: 1}, {Key: "started_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("ensure submission indexes: %w", err)
	}
	return nil
}

func (s *Store) Begin(ctx context.Context, sub domain.Submission) error {
	if sub.ID == "" {
		return domain.Validationf("submission id is required")
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionStatusPending
	}

	_, err := s.submissions.InsertOne(ctx, toDocument(sub))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Validationf("submission %s already recorded", sub.ID)
		}
		return err
	}
	return nil
}

func (s *Store) Advance(ctx context.Context, id string, cursor int) error {
	return s.set(ctx, id, bson.M{"cursor": cursor})
}

func (s *Store) SetParent(ctx context.Context, id string, parentID int64) error {
	return s.set(ctx, id, bson.M{"parent_id": parentID})
}

func (s *Store) Finish(ctx context.Context, id string, status string, errMsg string, at time.Time) error {
	return s.set(ctx, id, bson.M{
		"status":      status,
		"error":       errMsg,
		"finished_at": at.UTC(),
	})
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Submission, error) {
	var doc submissionDocument
	if err := s.submissions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sub := fromDocument(doc)
	return &sub, nil
}

func (s *Store) List(ctx context.Context, terminalID string, limit int) ([]domain.Submission, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(store.NormalizeLimit(limit)))
	return s.find(ctx, terminalFilter(terminalID), opts)
}

func (s *Store) ListIncomplete(ctx context.Context, terminalID string) ([]domain.Submission, error) {
	filter := terminalFilter(terminalID)
	filter["status"] = domain.SubmissionStatusPending
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	return s.find(ctx, filter, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Submission, error) {
	cursor, err := s.submissions.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []submissionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out, nil
}

func (s *Store) set(ctx context.Context, id string, fields bson.M) error {
	res, err := s.submissions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func terminalFilter(terminalID string) bson.M {
	if terminalID == "" {
		return bson.M{}
	}
	return bson.M{"terminal_id": terminalID}
}

func toDocument(sub domain.Submission) submissionDocument {
	lines := make([]lineDocument, 0, len(sub.Lines))
	for _, l := range sub.Lines {
		lines = append(lines, lineDocument(l))
	}
	return submissionDocument{
		ID:         sub.ID,
		TerminalID: sub.TerminalID,
		Kind:       sub.Kind,
		Vendor:     sub.Vendor,
		ParentID:   sub.ParentID,
		Lines:      lines,
		Cursor:     sub.Cursor,
		Status:     sub.Status,
		Error:      sub.Error,
		StartedAt:  sub.StartedAt.UTC(),
		FinishedAt: sub.FinishedAt,
	}
}

func fromDocument(doc submissionDocument) domain.Submission {
	lines := make([]domain.LineItem, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, domain.LineItem(l))
	}
	sub := domain.Submission{
		ID:         doc.ID,
		TerminalID: doc.TerminalID,
		Kind:       doc.Kind,
		Vendor:     doc.Vendor,
		ParentID:   doc.ParentID,
		Lines:      lines,
		Cursor:     doc.Cursor,
		Status:     doc.Status,
		Error:      doc.Error,
		StartedAt:  doc.StartedAt.UTC(),
	}
	if doc.FinishedAt != nil {
		finished := doc.FinishedAt.UTC()
		sub.FinishedAt = &finished
	}
	return sub
}
