package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulsePrice/internal/domain/models"
	applogger "PulsePrice/pkg/logger"
)

func quotes() map[string]models.TokenQuote {
	return map[string]models.TokenQuote{
		"naruto": {Price: 1_500_000, Ohlc: models.OhlcCandle{Open: 1_000_000, High: 1_500_000, Low: 1_000_000, Close: 1_500_000}},
	}
}

func batchOf(price int64) models.Batch {
	return models.Batch{Timestamp: 1, Items: []models.BatchItem{{TokenID: "naruto", Price: price, Timestamp: 1}}}
}

func TestBroadcaster_SnapshotComesFirst(t *testing.T) {
	b := NewStreamBroadcaster(quotes, 4, applogger.NewNop(), nil)
	sub := b.Subscribe()
	b.Publish(batchOf(1_600_000))

	first := <-sub.C
	assert.Equal(t, models.MessageSnapshot, first.Type)
	assert.Equal(t, quotes(), first.Data)

	second := <-sub.C
	assert.Equal(t, models.MessagePriceUpdate, second.Type)
	items, ok := second.Data.([]models.BatchItem)
	require.True(t, ok)
	assert.Equal(t, int64(1_600_000), items[0].Price)
}

func TestBroadcaster_FansOutToAll(t *testing.T) {
	b := NewStreamBroadcaster(quotes, 4, applogger.NewNop(), nil)
	subs := []*Subscription{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	assert.Equal(t, 3, b.Len())

	b.Publish(batchOf(2_000_000))
	for _, s := range subs {
		<-s.C
		msg := <-s.C
		assert.Equal(t, models.MessagePriceUpdate, msg.Type)
	}
}

func TestBroadcaster_DropsSlowSubscriber(t *testing.T) {
	b := NewStreamBroadcaster(quotes, 2, applogger.NewNop(), nil)
	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 0; i < 3; i++ {
		b.Publish(batchOf(int64(2_000_000 + i)))
		// drain fast so only slow falls behind
		for len(fast.C) > 0 {
			<-fast.C
		}
	}

	assert.Equal(t, 1, b.Len())
	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, 2, n, "buffered messages are still readable before close")

	b.Publish(batchOf(3_000_000))
	msg, ok := <-fast.C
	require.True(t, ok)
	assert.Equal(t, models.MessagePriceUpdate, msg.Type)
}

func TestBroadcaster_UnsubscribeAndClose(t *testing.T) {
	b := NewStreamBroadcaster(quotes, 4, applogger.NewNop(), nil)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.Len())

	<-sub.C
	_, ok := <-sub.C
	assert.False(t, ok)

	other := b.Subscribe()
	b.Close()
	<-other.C
	_, ok = <-other.C
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
}
