package feed

import (
	"encoding/json"
	"strings"
	"time"
)

// FrameKind 入站帧的分类。
type FrameKind int

const (
	FrameInvalid FrameKind = iota
	FrameTick
	FrameAck
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameTick:
		return "tick"
	case FrameAck:
		return "ack"
	case FrameError:
		return "error"
	default:
		return "invalid"
	}
}

// Discard reasons reported for FrameInvalid.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonNotObject        = "not_object"
	ReasonMissingFields    = "missing_fields"
	ReasonInvalidType      = "invalid_type"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonInvalidPrice     = "invalid_price"
	ReasonEmptyValues      = "empty_values"
	ReasonUnknownFormat    = "unknown_format"
)

// Frame 是 Normalize 的结果，仅与 Kind 对应的字段有意义。
type Frame struct {
	Kind   FrameKind
	Tick   Tick
	Status string // ack: subscribed / unsubscribed
	Symbol string // ack symbol
	Err    string // server-reported error
	Reason string // why an invalid frame was discarded
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Normalize classifies one inbound text frame. It never panics and never returns an error:
// anything that is not a tick, an ack or a server error comes back as FrameInvalid with a
// Reason. fallbackSymbol fills ticks that omit "symbol".
//
// A tick needs a numeric bid, a numeric ask and a string timestamp that parses as a date.
// bid_price/ask_price/date_time are accepted as aliases, and a {"values":[...]} wrapper
// yields its last element.
func Normalize(raw []byte, fallbackSymbol string) Frame {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return invalid(ReasonInvalidJSON)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return invalid(ReasonNotObject)
	}

	if e, ok := obj["error"]; ok {
		msg, _ := e.(string)
		if msg == "" {
			b, _ := json.Marshal(e)
			msg = string(b)
		}
		return Frame{Kind: FrameError, Err: msg}
	}

	if st, ok := obj["status"].(string); ok && st != "" {
		sym, _ := obj["symbol"].(string)
		return Frame{Kind: FrameAck, Status: st, Symbol: sym}
	}

	if vals, ok := obj["values"]; ok {
		arr, ok := vals.([]any)
		if !ok {
			return invalid(ReasonInvalidType)
		}
		if len(arr) == 0 {
			return invalid(ReasonEmptyValues)
		}
		last, ok := arr[len(arr)-1].(map[string]any)
		if !ok {
			return invalid(ReasonNotObject)
		}
		return parseTick(last, fallbackSymbol)
	}

	if hasAny(obj, "bid", "ask", "bid_price", "ask_price") {
		return parseTick(obj, fallbackSymbol)
	}
	return invalid(ReasonUnknownFormat)
}

func parseTick(obj map[string]any, fallbackSymbol string) Frame {
	bidRaw, okBid := first(obj, "bid", "bid_price")
	askRaw, okAsk := first(obj, "ask", "ask_price")
	tsRaw, okTs := first(obj, "timestamp", "date_time")
	if !okBid || !okAsk || !okTs {
		return invalid(ReasonMissingFields)
	}

	bid, okBid := bidRaw.(float64)
	ask, okAsk := askRaw.(float64)
	tsStr, okTs := tsRaw.(string)
	if !okBid || !okAsk || !okTs {
		return invalid(ReasonInvalidType)
	}
	ts, ok := parseTimestamp(tsStr)
	if !ok {
		return invalid(ReasonInvalidTimestamp)
	}

	sym, _ := obj["symbol"].(string)
	if sym == "" {
		sym = fallbackSymbol
	}
	t := Tick{Symbol: sym, Bid: bid, Ask: ask, Timestamp: ts}
	if !t.Valid() {
		return invalid(ReasonInvalidPrice)
	}
	return Frame{Kind: FrameTick, Tick: t}
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// first returns the first non-null value among keys.
func first(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func hasAny(obj map[string]any, keys ...string) bool {
	_, ok := first(obj, keys...)
	return ok
}

func invalid(reason string) Frame {
	return Frame{Kind: FrameInvalid, Reason: reason}
}
