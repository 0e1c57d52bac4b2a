package ids

import (
	"strconv"
	"sync"
	"time"
)

// 41bit 毫秒时间戳 | 10bit 节点 | 12bit 毫秒内序列。
// server_msg_id 全部从这里出：同节点严格递增，跨节点靠 nodeID 区分。
const (
	nodeBits = 10
	seqBits  = 12
	nodeMax  = (1 << nodeBits) - 1
	seqMask  = (1 << seqBits) - 1
)

// 纪元取项目启用年，41bit 够用到 2095 年
var epochMS = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type snowGen struct {
	mu     sync.Mutex
	nodeID int64
	seq    int64
	lastMS int64
}

var gen = &snowGen{nodeID: 1}

// SetNodeID 进程启动时设一次；超界收敛到合法范围
func SetNodeID(nodeID int64) {
	gen.mu.Lock()
	defer gen.mu.Unlock()
	if nodeID < 0 || nodeID > nodeMax {
		nodeID &= nodeMax
		if nodeID < 0 {
			nodeID = 1
		}
	}
	gen.nodeID = nodeID
}

// Generate 生成一个消息ID
func Generate() int64 {
	return gen.next()
}

// GenerateString 十进制字符串形式（mongo _id 用）
func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

func (g *snowGen) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	// 时钟回拨：钉在 lastMS 上继续吃序列空间，不倒退发号
	if now < g.lastMS {
		now = g.lastMS
	}
	if now == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			// 毫秒内 4096 个用尽，自旋到下一毫秒
			for now <= g.lastMS {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = now

	return ((now - epochMS) << (nodeBits + seqBits)) | (g.nodeID << seqBits) | g.seq
}
