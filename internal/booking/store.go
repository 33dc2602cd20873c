package booking

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appointmentsCollection = "appointments"
	StatusCompleted        = "completed"
)

// Appointment is the subset of a booking record this service touches
type Appointment struct {
	ID          interface{} `bson:"_id" json:"id"`
	Status      string      `bson:"status,omitempty" json:"status,omitempty"`
	IsCompleted bool        `bson:"isCompleted" json:"isCompleted"`
	CompletedAt *time.Time  `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// MongoStore updates appointment records in MongoDB
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(appointmentsCollection),
		now:    time.Now,
	}, nil
}

// documentID accepts ObjectID hex and falls back to a raw string _id
func documentID(appointmentID string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(appointmentID); err == nil {
		return oid
	}
	return appointmentID
}

// MarkCompleted flags an appointment as completed. Completing an already
// completed appointment succeeds.
func (s *MongoStore) MarkCompleted(ctx context.Context, appointmentID string) error {
	if appointmentID == "" {
		return ErrNotFound
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": documentID(appointmentID)},
		bson.M{"$set": bson.M{
			"isCompleted": true,
			"status":      StatusCompleted,
			"completedAt": s.now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("complete appointment %s: %w", appointmentID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	return nil
}

// Get loads a single appointment
func (s *MongoStore) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	var appt Appointment
	err := s.coll.FindOne(ctx, bson.M{"_id": documentID(appointmentID)}).Decode(&appt)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
