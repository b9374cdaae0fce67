package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink_PublishNeverBlocks(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Publish(ProgressEvent{Kind: EventLogStarted, LogPath: "a.log"})
	sink.Publish(ProgressEvent{Kind: EventLogStarted, LogPath: "b.log"}) // buffer full, dropped

	select {
	case e := <-sink.Events():
		assert.Equal(t, "a.log", e.LogPath)
	default:
		t.Fatal("expected the first event to be queued")
	}
}

func TestTextSink_FormatsByKind(t *testing.T) {
	var lines []string
	sink := NewTextSink(func(s string) { lines = append(lines, s) })

	sink.Publish(ProgressEvent{Kind: EventStageStarted, Stage: "ANALYZE"})
	sink.Publish(ProgressEvent{Kind: EventWarning, Message: "disk low"})

	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ANALYZE started")
	assert.Contains(t, lines[1], "disk low")
}

func TestJSONSink_WritesValidJSON(t *testing.T) {
	var out string
	sink := NewJSONSink(func(s string) { out = s })
	sink.Publish(ProgressEvent{Kind: EventLogCompleted, LogPath: "a.log"})

	assert.Contains(t, out, `"LogPath":"a.log"`)
}

func TestMultiSink_FansOutToAll(t *testing.T) {
	var a, b []ProgressEvent
	sinkA := &recordingSink{events: &a}
	sinkB := &recordingSink{events: &b}
	multi := NewMultiSink(sinkA, sinkB)

	multi.Publish(ProgressEvent{Kind: EventWarning})
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

type recordingSink struct {
	events *[]ProgressEvent
}

func (r *recordingSink) Publish(e ProgressEvent) {
	*r.events = append(*r.events, e)
}

func TestStatsPublisher_PublishesOnInterval(t *testing.T) {
	sink := NewChannelSink(4)
	publisher := NewStatsPublisher(sink, 10*time.Millisecond, func() Stats {
		return Stats{LogsTotal: 5, LogsCompleted: 2}
	})
	publisher.Start()
	defer publisher.Stop()

	select {
	case e := <-sink.Events():
		assert.Equal(t, EventStatsSnapshot, e.Kind)
		assert.Equal(t, 5, e.Stats.LogsTotal)
	case <-time.After(time.Second):
		t.Fatal("expected a stats snapshot to be published")
	}
}

func TestNopSink_DiscardsEverything(t *testing.T) {
	var sink Sink = NopSink{}
	assert.NotPanics(t, func() { sink.Publish(ProgressEvent{Kind: EventWarning}) })
}
