package ledger

import chatmodel "IMStore/module/chat/model"

func normPair(a, b string) (lo, hi string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// BuildDirectConvID 单聊的统一会话ID：p2p:min_max，两端算出来一致
func BuildDirectConvID(a, b string) string {
	lo, hi := normPair(a, b)
	return "p2p:" + lo + "_" + hi
}

// BuildGroupConvID 群聊会话ID：grp:<gid>
func BuildGroupConvID(groupID string) string {
	return "grp:" + groupID
}

// ConvTypeOf 从会话ID前缀反推类型
func ConvTypeOf(conversationID string) int32 {
	if len(conversationID) >= 4 && conversationID[:4] == "grp:" {
		return chatmodel.ConvTypeGroup
	}
	return chatmodel.ConvTypeDirect
}
