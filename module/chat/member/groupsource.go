package member

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoGroupSource 从 group_member 集合读群成员名单
type MongoGroupSource struct {
	Coll *mongo.Collection
}

func NewMongoGroupSource(db *mongo.Database) *MongoGroupSource {
	return &MongoGroupSource{Coll: db.Collection("group_member")}
}

func (g *MongoGroupSource) ListMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	cur, err := g.Coll.Find(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var row struct {
			UserID string `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.UserID)
	}
	return out, cur.Err()
}
