package mongodb

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
)

var staffRoles = []models.Role{models.RoleAgent, models.RoleAdmin}

func (s *Store) InsertComment(ctx context.Context, c models.Comment) error {
	_, err := s.comments.InsertOne(ctx, c)
	return err
}

func (s *Store) ListComments(ctx context.Context, ticketID string) ([]models.Comment, error) {
	return s.findComments(ctx, bson.M{"ticket_id": ticketID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
}

func (s *Store) MarkCommentsRead(ctx context.Context, ticketID string) (int64, error) {
	res, err := s.comments.UpdateMany(ctx,
		bson.M{"ticket_id": ticketID, "role": models.RoleUser, "read_by_agent": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"read_by_agent": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Store) MarkCommentSent(ctx context.Context, id string) error {
	res, err := s.comments.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"sent_to_telegram": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("comment %s not found", id)
	}
	return nil
}

func (s *Store) ListUndeliveredComments(ctx context.Context, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}).SetLimit(int64(limit))
	return s.findComments(ctx, bson.M{
		"role":             bson.M{"$in": staffRoles},
		"sent_to_telegram": bson.M{"$ne": true},
	}, opts)
}

func (s *Store) UnreadTicketIDs(ctx context.Context) ([]string, error) {
	values, err := s.comments.Distinct(ctx, "ticket_id", bson.M{"role": models.RoleUser, "read_by_agent": bson.M{"$ne": true}})
	if err != nil {
		return nil, err
	}
	ids := stringValues(values)
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) findComments(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Comment, error) {
	cur, err := s.comments.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
