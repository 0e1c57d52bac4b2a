package replica

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type published struct {
	data []byte
	hdr  map[string]string
}

func capturePublish(out *[]published) PublishFn {
	return func(_ context.Context, _ string, data []byte, hdr map[string]string) error {
		*out = append(*out, published{data, hdr})
		return nil
	}
}

func rawDocs(sizes ...int) []json.RawMessage {
	docs := make([]json.RawMessage, 0, len(sizes))
	for _, n := range sizes {
		doc, _ := json.Marshal(map[string]string{"pad": strings.Repeat("x", n)})
		docs = append(docs, doc)
	}
	return docs
}

func TestPublishSmallBatchWhole(t *testing.T) {
	var got []published
	b := &Bridge{Publish: capturePublish(&got), Ceiling: 1 << 20}

	n, err := b.PublishBatch(context.Background(), "cdc.message", &Batch{
		BatchID: "b1", Entity: "message", Op: "insert", Docs: rawDocs(10, 10, 10),
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Len(t, got, 1)
	require.Equal(t, "b1", got[0].hdr["Nats-Msg-Id"])
}

func TestPublishOversizeBatchSplits(t *testing.T) {
	var got []published
	// 上限压到 1KB，6 个 ~400B 文档必然递归拆分
	b := &Bridge{Publish: capturePublish(&got), Ceiling: 1024}

	n, err := b.PublishBatch(context.Background(), "cdc.message", &Batch{
		BatchID: "big", Entity: "message", Op: "insert",
		Docs: rawDocs(400, 400, 400, 400, 400, 400),
	})
	require.NoError(t, err)
	// 元素一个不丢
	require.Equal(t, 6, n)
	require.GreaterOrEqual(t, len(got), 3)

	// 每条实际发出的消息都低于上限，且批属性原样继承
	total := 0
	for _, p := range got {
		require.LessOrEqual(t, len(p.data), 1024)
		var sub Batch
		require.NoError(t, json.Unmarshal(p.data, &sub))
		require.Equal(t, "message", sub.Entity)
		require.Equal(t, "insert", sub.Op)
		require.NotEmpty(t, sub.BatchID)
		total += len(sub.Docs)
	}
	require.Equal(t, 6, total)
}

func TestPublishSingleOversizeElementStillSent(t *testing.T) {
	var got []published
	b := &Bridge{Publish: capturePublish(&got), Ceiling: 64}

	n, err := b.PublishBatch(context.Background(), "cdc.message", &Batch{
		BatchID: "one", Entity: "message", Op: "insert", Docs: rawDocs(500),
	})
	// 单元素没法再拆，照发
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, got, 1)
}

func TestPublishEmptyBatchIsNoop(t *testing.T) {
	var got []published
	b := &Bridge{Publish: capturePublish(&got), Ceiling: 1024}

	n, err := b.PublishBatch(context.Background(), "cdc.message", &Batch{BatchID: "e", Entity: "message", Op: "insert"})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, got)
}
