package replica

import (
	"IMStore/global/config"
	chatmodel "IMStore/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
)

// 三个实体各一个 handler：消息（按月分区集合名匹配）、会话账本、成员账本。

func NewMessageHandler(bridge *Bridge) *EntityHandler {
	return NewEntityHandler("message", config.BizCdcMessage,
		chatmodel.IsMsgPartition,
		func(raw bson.Raw) (any, error) {
			var m chatmodel.MessageModel
			if err := bson.Unmarshal(raw, &m); err != nil {
				return nil, err
			}
			return &m, nil
		}, bridge)
}

func NewConversationHandler(bridge *Bridge) *EntityHandler {
	conv := chatmodel.Conversation{}
	table := conv.GetTableName()
	return NewEntityHandler("conversation", config.BizCdcConv,
		func(coll string) bool { return coll == table },
		func(raw bson.Raw) (any, error) {
			var c chatmodel.Conversation
			if err := bson.Unmarshal(raw, &c); err != nil {
				return nil, err
			}
			return &c, nil
		}, bridge)
}

func NewMembershipHandler(bridge *Bridge) *EntityHandler {
	mem := chatmodel.Membership{}
	table := mem.GetTableName()
	return NewEntityHandler("membership", config.BizCdcMember,
		func(coll string) bool { return coll == table },
		func(raw bson.Raw) (any, error) {
			var m chatmodel.Membership
			if err := bson.Unmarshal(raw, &m); err != nil {
				return nil, err
			}
			return &m, nil
		}, bridge)
}
