package shifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	shiftCollection       = "cashier_sessions"
	transactionCollection = "transactions"
)

// shiftDoc is the Mongo representation of a Shift.
type shiftDoc struct {
	ID              string     `bson:"_id"`
	OpenedAt        time.Time  `bson:"opened_at"`
	OpenedBy        string     `bson:"opened_by"`
	InitialBalance  int64      `bson:"initial_balance"`
	Status          Status     `bson:"status"`
	ClosedAt        *time.Time `bson:"closed_at,omitempty"`
	ClosedBy        string     `bson:"closed_by,omitempty"`
	FinalBalance    *int64     `bson:"final_balance,omitempty"`
	TotalSales      *int64     `bson:"total_sales,omitempty"`
	TotalExpenses   *int64     `bson:"total_expenses,omitempty"`
	ExpectedBalance *int64     `bson:"expected_balance,omitempty"`
	Notes           string     `bson:"notes,omitempty"`
}

type transactionDoc struct {
	ID        string          `bson:"_id"`
	ShiftID   *string         `bson:"shift_id"`
	Type      TransactionType `bson:"type"`
	Amount    int64           `bson:"amount"`
	CreatedAt time.Time       `bson:"created_at"`
}

// MongoStore implements Store on MongoDB. A partial unique index on status
// keeps at most one open shift, like the relational schema.
type MongoStore struct {
	shifts *mongo.Collection
	txs    *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{shifts: db.Collection(shiftCollection), txs: db.Collection(transactionCollection)}
}

// EnsureMongoIndexes creates the indexes MongoStore relies on. It is idempotent.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	oneOpen := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
		Options: options.Index().
			SetName("one_open_shift").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": string(StatusOpen)}),
	}
	if _, err := db.Collection(shiftCollection).Indexes().CreateOne(ctx, oneOpen); err != nil {
		return fmt.Errorf("create open shift index: %w", err)
	}
	byShift := mongo.IndexModel{Keys: bson.D{{Key: "shift_id", Value: 1}, {Key: "created_at", Value: 1}}}
	if _, err := db.Collection(transactionCollection).Indexes().CreateOne(ctx, byShift); err != nil {
		return fmt.Errorf("create transaction index: %w", err)
	}
	return nil
}

func (m *MongoStore) Insert(ctx context.Context, s *Shift) error {
	_, err := m.shifts.InsertOne(ctx, toShiftDoc(s))
	if mongo.IsDuplicateKeyError(err) {
		return ErrShiftAlreadyOpen
	}
	if err != nil {
		return fmt.Errorf("insert shift: %w", err)
	}
	return nil
}

func (m *MongoStore) FindOpen(ctx context.Context) (*Shift, error) {
	s, err := m.findOne(ctx, bson.M{"status": string(StatusOpen)})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func (m *MongoStore) Get(ctx context.Context, id string) (*Shift, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoStore) findOne(ctx context.Context, filter bson.M) (*Shift, error) {
	var d shiftDoc
	err := m.shifts.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find shift: %w", err)
	}
	return fromShiftDoc(&d), nil
}

func (m *MongoStore) CloseIfOpen(ctx context.Context, id string, c Closing) (*Shift, error) {
	set := bson.M{
		"status":           string(StatusClosed),
		"closed_at":        c.ClosedAt,
		"closed_by":        c.ClosedBy,
		"final_balance":    int64(c.FinalBalance),
		"total_sales":      int64(c.TotalSales),
		"total_expenses":   int64(c.TotalExpenses),
		"expected_balance": int64(c.ExpectedBalance),
		"notes":            c.Notes,
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d shiftDoc
	err := m.shifts.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": string(StatusOpen)}, bson.M{"$set": set}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoOpenShift
	}
	if err != nil {
		return nil, fmt.Errorf("close shift %s: %w", id, err)
	}
	return fromShiftDoc(&d), nil
}

func (m *MongoStore) Transactions(ctx context.Context, shiftID string) ([]Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := m.txs.Find(ctx, bson.M{"shift_id": shiftID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer cur.Close(ctx)
	var out []Transaction
	for cur.Next(ctx) {
		var d transactionDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, Transaction{ID: d.ID, ShiftID: d.ShiftID, Type: d.Type, Amount: Money(d.Amount), CreatedAt: d.CreatedAt})
	}
	return out, cur.Err()
}

func (m *MongoStore) AddTransaction(ctx context.Context, tx *Transaction) error {
	d := transactionDoc{ID: tx.ID, ShiftID: tx.ShiftID, Type: tx.Type, Amount: int64(tx.Amount), CreatedAt: tx.CreatedAt}
	if _, err := m.txs.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func toShiftDoc(s *Shift) shiftDoc {
	return shiftDoc{
		ID:              s.ID,
		OpenedAt:        s.OpenedAt,
		OpenedBy:        s.OpenedBy,
		InitialBalance:  int64(s.InitialBalance),
		Status:          s.Status,
		ClosedAt:        s.ClosedAt,
		ClosedBy:        s.ClosedBy,
		FinalBalance:    centsPtr(s.FinalBalance),
		TotalSales:      centsPtr(s.TotalSales),
		TotalExpenses:   centsPtr(s.TotalExpenses),
		ExpectedBalance: centsPtr(s.ExpectedBalance),
		Notes:           s.Notes,
	}
}

func fromShiftDoc(d *shiftDoc) *Shift {
	return &Shift{
		ID:              d.ID,
		OpenedAt:        d.OpenedAt.UTC(),
		OpenedBy:        d.OpenedBy,
		InitialBalance:  Money(d.InitialBalance),
		Status:          d.Status,
		ClosedAt:        d.ClosedAt,
		ClosedBy:        d.ClosedBy,
		FinalBalance:    moneyPtr(d.FinalBalance),
		TotalSales:      moneyPtr(d.TotalSales),
		TotalExpenses:   moneyPtr(d.TotalExpenses),
		ExpectedBalance: moneyPtr(d.ExpectedBalance),
		Notes:           d.Notes,
	}
}

func centsPtr(m *Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}
