package message

import (
	"sort"

	chatmodel "IMStore/module/chat/model"
)

func sortBySeqAsc(ms []*chatmodel.MessageModel) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Seq < ms[j].Seq })
}

func sortBySeqDesc(ms []*chatmodel.MessageModel) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Seq > ms[j].Seq })
}
