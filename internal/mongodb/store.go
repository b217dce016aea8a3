// Package mongodb implements store.Store on MongoDB. Tickets, comments and
// users live in their own collections; assignment changes go through a
// single filtered UpdateOne so concurrent claims resolve at the server.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
	"github.com/botsdv/backend/internal/store"
)

type Store struct {
	Client   *mongo.Client
	tickets  *mongo.Collection
	comments *mongo.Collection
	users    *mongo.Collection
}

func New(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		Client:   client,
		tickets:  db.Collection("tickets"),
		comments: db.Collection("comments"),
		users:    db.Collection("users"),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ticket_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "assigned_agent", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("ticket indexes: %w", err)
	}
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	if _, err := s.comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ticket_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}); err != nil {
		return fmt.Errorf("comment indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Client.Disconnect(ctx)
}

func (s *Store) InsertTicket(ctx context.Context, t models.Ticket) error {
	_, err := s.tickets.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return errs.Duplicate("ticket_number", err)
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	return s.findTicket(ctx, bson.M{"_id": id}, id)
}

func (s *Store) GetTicketByNumber(ctx context.Context, number string) (models.Ticket, error) {
	return s.findTicket(ctx, bson.M{"ticket_number": number}, number)
}

func (s *Store) findTicket(ctx context.Context, filter bson.M, key string) (models.Ticket, error) {
	var t models.Ticket
	err := s.tickets.FindOne(ctx, filter).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Ticket{}, errs.NotFound("ticket %s not found", key)
	}
	return t, err
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, cond store.Condition, patch store.Patch) (bool, error) {
	filter := bson.M{"_id": id}
	if cond.ClaimableBy != "" {
		filter["$or"] = bson.A{
			bson.M{"assigned_agent": nil},
			bson.M{"assigned_agent": cond.ClaimableBy},
		}
	}
	if len(cond.StatusIn) > 0 {
		filter["status"] = bson.M{"$in": cond.StatusIn}
	}

	set := bson.M{"updated_at": patch.UpdatedAt}
	if patch.SetAssignee {
		set["assigned_agent"] = patch.AssignedAgent
		if patch.AssignedAgent == nil {
			set["assigned_agent_name"] = nil
		} else {
			set["assigned_agent_name"] = patch.AssignedAgentName
		}
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.CompletedAt != nil {
		set["completed_at"] = *patch.CompletedAt
	}

	res, err := s.tickets.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) QueryTickets(ctx context.Context, f store.TicketFilter) ([]models.Ticket, error) {
	filter := bson.M{}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.AssignedAgent != "" {
		filter["assigned_agent"] = f.AssignedAgent
	}
	if f.Unassigned {
		filter["assigned_agent"] = nil
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	created := bson.M{}
	if !f.CreatedFrom.IsZero() {
		created["$gte"] = f.CreatedFrom
	}
	if !f.CreatedBefore.IsZero() {
		created["$lt"] = f.CreatedBefore
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := s.tickets.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]models.Ticket, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.tickets.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.NotFound("ticket %s not found", id)
	}
	_, err = s.comments.DeleteMany(ctx, bson.M{"ticket_id": id})
	return err
}

func (s *Store) TicketYears(ctx context.Context) ([]int, error) {
	cur, err := s.tickets.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": bson.M{"$year": "$created_at"}}}},
		{{Key: "$sort", Value: bson.M{"_id": -1}}},
	})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Year int `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	years := make([]int, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.Year)
	}
	return years, nil
}

func (s *Store) TicketCategories(ctx context.Context) ([]string, error) {
	values, err := s.tickets.Distinct(ctx, "category", bson.M{"category": bson.M{"$ne": ""}})
	if err != nil {
		return nil, err
	}
	return stringValues(values), nil
}

func stringValues(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
