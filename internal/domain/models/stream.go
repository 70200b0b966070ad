package models

const (
	MessageSnapshot    = "snapshot"
	MessagePriceUpdate = "price_update"
)

// BatchItem is one token's entry in a tick batch.
type BatchItem struct {
	TokenID   string     `json:"tokenId"`
	Price     int64      `json:"price"`
	Timestamp int64      `json:"timestamp"`
	Ohlc      OhlcCandle `json:"ohlc"`
	Changed   bool       `json:"-"`
}

// Batch is the set of results produced by one tick.
type Batch struct {
	Timestamp int64
	Items     []BatchItem
	// States holds the full post-tick state of each item, for persistence sinks.
	States map[string]TokenPriceState
}

// StreamMessage is the envelope pushed to stream subscribers.
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewSnapshotMessage wraps a full {tokenId: {price, ohlc}} map.
func NewSnapshotMessage(snapshot map[string]TokenQuote) StreamMessage {
	return StreamMessage{Type: MessageSnapshot, Data: snapshot}
}

// NewPriceUpdateMessage wraps the items of one batch.
func NewPriceUpdateMessage(b Batch) StreamMessage {
	items := b.Items
	if items == nil {
		items = []BatchItem{}
	}
	return StreamMessage{Type: MessagePriceUpdate, Data: items}
}
