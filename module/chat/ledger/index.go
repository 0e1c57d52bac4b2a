package ledger

import (
	"context"
	"fmt"

	chatmodel "IMStore/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes 账本类集合的索引引导（消息分区索引随分区懒建，见 message.Store）
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	conv := chatmodel.Conversation{}
	mem := chatmodel.Membership{}

	collections := map[string][]mongo.IndexModel{
		conv.GetTableName(): {{
			Keys:    bson.D{{Key: chatmodel.ConvFieldConversationID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_conv"),
		}},
		mem.GetTableName(): {
			{
				Keys: bson.D{{Key: chatmodel.MemberFieldUserID, Value: 1},
					{Key: chatmodel.MemberFieldConversationID, Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_user_conv"),
			},
			{
				Keys: bson.D{{Key: chatmodel.MemberFieldConversationID, Value: 1},
					{Key: chatmodel.MemberFieldLeaveSeq, Value: 1}},
				Options: options.Index().SetName("ix_conv_active"),
			},
		},
	}

	for collName, indexes := range collections {
		coll := db.Collection(collName)

		existing, err := coll.Indexes().ListSpecifications(ctx)
		if err != nil {
			return fmt.Errorf("list indexes for %s: %w", collName, err)
		}
		existingNames := make(map[string]struct{}, len(existing))
		for _, spec := range existing {
			existingNames[spec.Name] = struct{}{}
		}

		// 只创建不存在的
		for _, idx := range indexes {
			if idx.Options != nil && idx.Options.Name != nil {
				if _, ok := existingNames[*idx.Options.Name]; ok {
					continue
				}
			}
			if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
				return fmt.Errorf("create index %s on %s: %w", *idx.Options.Name, collName, err)
			}
		}
	}

	return nil
}
