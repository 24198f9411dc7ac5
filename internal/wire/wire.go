// Package wire is the thin adapter layer the Design Notes in spec.md §9
// call for: "ChunkedEntry is modeled in source via does-field-exist checks
// on a generated message; in a systems language prefer an explicit sum type
// produced by a thin adapter layer over the generated protobuf bindings."
//
// Rather than checking in generated .pb.go bindings (this module has no
// protoc step), the adapter decodes the NDGR wire messages directly with
// google.golang.org/protobuf/encoding/protowire — the same low-level
// varint/length-delimited primitives codegen'd bindings are built on — and
// produces the model package's explicit sum types. Field numbers below are
// this adapter's own schema for the wire shapes spec.md §6 describes; there
// is no public .proto source to codegen from.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nicolive/ndgr-client/internal/model"
)

// ChunkedEntry field numbers (oneof segment/next/backward).
const (
	fieldEntrySegment  = 1
	fieldEntryNext     = 2
	fieldEntryBackward = 3
)

// MessageSegment field numbers.
const (
	fieldSegmentURI   = 1
	fieldSegmentFrom  = 2
	fieldSegmentUntil = 3
)

// ReadyForNext field numbers.
const fieldNextAt = 1

// BackwardSegment field numbers: a nested MessageSegment-shaped uri holder.
const fieldBackwardSegment = 1

// Timestamp (seconds/nanos) field numbers.
const (
	fieldTimeSeconds = 1
	fieldTimeNanos   = 2
)

// ChunkedMessage field numbers.
const (
	fieldMsgMeta    = 1
	fieldMsgPayload = 2
)

// Meta field numbers.
const (
	fieldMetaID     = 1
	fieldMetaAt     = 2
	fieldMetaOrigin = 3
)

// Origin/ChatOrigin field numbers.
const (
	fieldOriginChat   = 1
	fieldChatOriginID = 1
)

// MessagePayload field numbers (oneof chat/overflowed_chat).
const (
	fieldPayloadChat           = 1
	fieldPayloadOverflowedChat = 2
)

// Chat field numbers.
const (
	fieldChatRawUserID     = 1
	fieldChatHashedUserID  = 2
	fieldChatAccountStatus = 3
	fieldChatNo            = 4
	fieldChatVpos          = 5
	fieldChatContent       = 6
	fieldChatModifier      = 7
)

// Modifier field numbers.
const (
	fieldModPosition   = 1
	fieldModSize       = 2
	fieldModFont       = 3
	fieldModOpacity    = 4
	fieldModFullColor  = 5
	fieldModNamedColor = 6
)

// RGBColor field numbers.
const (
	fieldRGBR = 1
	fieldRGBG = 2
	fieldRGBB = 3
)

// PackedSegment field numbers.
const (
	fieldPackedMessages = 1
	fieldPackedNext     = 2
)

// field is one decoded top-level (number, wire value) pair.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	varint uint64
	bytes  []byte
}

// splitFields walks every top-level field of a protobuf message and returns
// all of them in wire order, repeats included. lastBytes/lastVarint then
// apply last-one-wins for singular fields (standard proto3 merge semantics);
// allBytes reports every occurrence of a repeated field.
func splitFields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid varint: %w", protowire.ParseError(n))
			}
			out = append(out, field{num: num, typ: typ, varint: v})
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid length-delimited field: %w", protowire.ParseError(n))
			}
			out = append(out, field{num: num, typ: typ, bytes: v})
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid fixed32: %w", protowire.ParseError(n))
			}
			out = append(out, field{num: num, typ: typ, varint: uint64(v)})
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid fixed64: %w", protowire.ParseError(n))
			}
			out = append(out, field{num: num, typ: typ, varint: v})
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid group field")
			}
			b = b[n:]
		}
	}
	return out, nil
}

func lastBytes(fields []field, num protowire.Number) ([]byte, bool) {
	var result []byte
	found := false
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			result = f.bytes
			found = true
		}
	}
	return result, found
}

func allBytes(fields []field, num protowire.Number) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			out = append(out, f.bytes)
		}
	}
	return out
}

func lastVarint(fields []field, num protowire.Number) (uint64, bool) {
	var result uint64
	found := false
	for _, f := range fields {
		if f.num == num {
			result = f.varint
			found = true
		}
	}
	return result, found
}

func decodeTimestamp(b []byte) (model.Timestamp, error) {
	fields, err := splitFields(b)
	if err != nil {
		return model.Timestamp{}, err
	}
	var ts model.Timestamp
	if v, ok := lastVarint(fields, fieldTimeSeconds); ok {
		ts.Seconds = int64(v)
	}
	if v, ok := lastVarint(fields, fieldTimeNanos); ok {
		ts.Nanos = int32(v)
	}
	return ts, nil
}

// DecodeChunkedEntry decodes one View-stream record into the model's
// tagged-union ViewEntry. An entry with none of the known variants set is
// returned as a zero-value ViewEntry (spec.md §4.E "unknown variant: ignore").
func DecodeChunkedEntry(data []byte) (model.ViewEntry, error) {
	fields, err := splitFields(data)
	if err != nil {
		return model.ViewEntry{}, err
	}

	var entry model.ViewEntry

	if b, ok := lastBytes(fields, fieldEntrySegment); ok {
		seg, err := decodeSegment(b)
		if err != nil {
			return model.ViewEntry{}, err
		}
		entry.Segment = &seg
	}
	if b, ok := lastBytes(fields, fieldEntryNext); ok {
		next, err := decodeReadyForNext(b)
		if err != nil {
			return model.ViewEntry{}, err
		}
		entry.Next = &next
	}
	if b, ok := lastBytes(fields, fieldEntryBackward); ok {
		back, err := decodeBackward(b)
		if err != nil {
			return model.ViewEntry{}, err
		}
		entry.Backward = &back
	}

	return entry, nil
}

func decodeSegment(b []byte) (model.SegmentDescriptor, error) {
	fields, err := splitFields(b)
	if err != nil {
		return model.SegmentDescriptor{}, err
	}
	var seg model.SegmentDescriptor
	if v, ok := lastBytes(fields, fieldSegmentURI); ok {
		seg.URI = string(v)
	}
	if v, ok := lastBytes(fields, fieldSegmentFrom); ok {
		ts, err := decodeTimestamp(v)
		if err != nil {
			return model.SegmentDescriptor{}, err
		}
		seg.From = ts
	}
	if v, ok := lastBytes(fields, fieldSegmentUntil); ok {
		ts, err := decodeTimestamp(v)
		if err != nil {
			return model.SegmentDescriptor{}, err
		}
		seg.Until = ts
	}
	return seg, nil
}

func decodeReadyForNext(b []byte) (model.ReadyForNext, error) {
	fields, err := splitFields(b)
	if err != nil {
		return model.ReadyForNext{}, err
	}
	var next model.ReadyForNext
	if v, ok := lastVarint(fields, fieldNextAt); ok {
		next.At = int64(v)
	}
	return next, nil
}

func decodeBackward(b []byte) (model.BackwardURI, error) {
	fields, err := splitFields(b)
	if err != nil {
		return model.BackwardURI{}, err
	}
	var back model.BackwardURI
	if segBytes, ok := lastBytes(fields, fieldBackwardSegment); ok {
		segFields, err := splitFields(segBytes)
		if err != nil {
			return model.BackwardURI{}, err
		}
		if v, ok := lastBytes(segFields, fieldSegmentURI); ok {
			back.URI = string(v)
		}
	}
	return back, nil
}

// DecodeChunkedMessage decodes one segment-stream or packed-segment record.
// The bool result reports admissibility per spec.md §3: the message must
// have a meta block with a non-empty id and a chat or overflowed_chat
// payload with a modifier block. meta.at and meta.origin's live id are
// decoded when present but are not required: a message lacking them is
// admitted with zero values. Inadmissible messages are not an error; the
// caller silently drops them.
func DecodeChunkedMessage(data []byte) (model.ChunkedMessage, bool, error) {
	fields, err := splitFields(data)
	if err != nil {
		return model.ChunkedMessage{}, false, err
	}

	var msg model.ChunkedMessage

	metaBytes, hasMeta := lastBytes(fields, fieldMsgMeta)
	if !hasMeta {
		return model.ChunkedMessage{}, false, nil
	}
	if err := decodeMeta(metaBytes, &msg); err != nil {
		return model.ChunkedMessage{}, false, err
	}
	if msg.MetaID == "" {
		return model.ChunkedMessage{}, false, nil
	}

	payloadBytes, hasPayload := lastBytes(fields, fieldMsgPayload)
	if !hasPayload {
		return model.ChunkedMessage{}, false, nil
	}
	payloadFields, err := splitFields(payloadBytes)
	if err != nil {
		return model.ChunkedMessage{}, false, err
	}

	chatBytes, isOverflowed, ok := firstChat(payloadFields)
	if !ok {
		return model.ChunkedMessage{}, false, nil
	}
	chat, hasModifier, err := decodeChat(chatBytes)
	if err != nil {
		return model.ChunkedMessage{}, false, err
	}
	if !hasModifier {
		return model.ChunkedMessage{}, false, nil
	}

	msg.Chat = &chat
	msg.IsOverflowed = isOverflowed
	return msg, true, nil
}

func firstChat(payloadFields []field) (chatBytes []byte, isOverflowed bool, ok bool) {
	if b, found := lastBytes(payloadFields, fieldPayloadChat); found {
		return b, false, true
	}
	if b, found := lastBytes(payloadFields, fieldPayloadOverflowedChat); found {
		return b, true, true
	}
	return nil, false, false
}

func decodeMeta(b []byte, msg *model.ChunkedMessage) error {
	fields, err := splitFields(b)
	if err != nil {
		return err
	}
	if v, ok := lastBytes(fields, fieldMetaID); ok {
		msg.MetaID = string(v)
	}
	if v, ok := lastBytes(fields, fieldMetaAt); ok {
		ts, err := decodeTimestamp(v)
		if err != nil {
			return err
		}
		msg.MetaAt = ts
	}
	if originBytes, ok := lastBytes(fields, fieldMetaOrigin); ok {
		originFields, err := splitFields(originBytes)
		if err != nil {
			return err
		}
		if chatOriginBytes, ok := lastBytes(originFields, fieldOriginChat); ok {
			chatOriginFields, err := splitFields(chatOriginBytes)
			if err != nil {
				return err
			}
			if v, ok := lastVarint(chatOriginFields, fieldChatOriginID); ok {
				msg.MetaLiveID = int64(v)
			}
		}
	}
	return nil
}

// decodeChat returns the decoded Chat and whether a modifier block was
// present (spec.md §3 admissibility: "reject records without a modifier").
func decodeChat(b []byte) (model.Chat, bool, error) {
	fields, err := splitFields(b)
	if err != nil {
		return model.Chat{}, false, err
	}

	var chat model.Chat
	if v, ok := lastVarint(fields, fieldChatRawUserID); ok {
		chat.RawUserID = int64(v)
	}
	if v, ok := lastBytes(fields, fieldChatHashedUserID); ok {
		chat.HashedUserID = string(v)
	}
	if v, ok := lastVarint(fields, fieldChatAccountStatus); ok {
		if v == 1 {
			chat.AccountStatus = model.AccountPremium
		} else {
			chat.AccountStatus = model.AccountStandard
		}
	} else {
		chat.AccountStatus = model.AccountStandard
	}
	if v, ok := lastVarint(fields, fieldChatNo); ok {
		chat.No = int64(v)
	}
	if v, ok := lastVarint(fields, fieldChatVpos); ok {
		chat.Vpos = int64(v)
	}
	if v, ok := lastBytes(fields, fieldChatContent); ok {
		chat.Content = string(v)
	}

	modBytes, hasModifier := lastBytes(fields, fieldChatModifier)
	if !hasModifier {
		return chat, false, nil
	}
	if err := decodeModifier(modBytes, &chat); err != nil {
		return model.Chat{}, false, err
	}
	return chat, true, nil
}

var positionByEnum = []model.Position{model.PositionNaka, model.PositionShita, model.PositionUe}
var sizeByEnum = []model.Size{model.SizeMedium, model.SizeSmall, model.SizeBig}
var fontByEnum = []model.Font{model.FontDefont, model.FontMincho, model.FontGothic}
var opacityByEnum = []model.Opacity{model.OpacityNormal, model.OpacityTranslucent}

var namedColorByEnum = []string{
	"white", "red", "pink", "orange", "yellow", "green", "cyan", "blue", "purple", "black",
	"white2", "red2", "pink2", "orange2", "yellow2", "green2", "cyan2", "blue2", "purple2", "black2",
}

func decodeModifier(b []byte, chat *model.Chat) error {
	fields, err := splitFields(b)
	if err != nil {
		return err
	}

	chat.Position = enumOr(fields, fieldModPosition, positionByEnum, model.PositionNaka)
	chat.Size = enumOr(fields, fieldModSize, sizeByEnum, model.SizeMedium)
	chat.Font = enumOr(fields, fieldModFont, fontByEnum, model.FontDefont)
	chat.Opacity = enumOr(fields, fieldModOpacity, opacityByEnum, model.OpacityNormal)

	// Color policy (spec.md §4.F step 3): full_color wins, else named_color,
	// else "white".
	if fc, ok := lastBytes(fields, fieldModFullColor); ok {
		rgb, err := decodeRGB(fc)
		if err != nil {
			return err
		}
		chat.FullColor = &rgb
		return nil
	}
	if v, ok := lastVarint(fields, fieldModNamedColor); ok && int(v) < len(namedColorByEnum) {
		chat.NamedColor = namedColorByEnum[v]
		return nil
	}
	chat.NamedColor = "white"
	return nil
}

func enumOr[T any](fields []field, num protowire.Number, table []T, zero T) T {
	v, ok := lastVarint(fields, num)
	if !ok || int(v) >= len(table) {
		return zero
	}
	return table[v]
}

func decodeRGB(b []byte) (model.RGBColor, error) {
	fields, err := splitFields(b)
	if err != nil {
		return model.RGBColor{}, err
	}
	var rgb model.RGBColor
	if v, ok := lastVarint(fields, fieldRGBR); ok {
		rgb.R = uint8(v)
	}
	if v, ok := lastVarint(fields, fieldRGBG); ok {
		rgb.G = uint8(v)
	}
	if v, ok := lastVarint(fields, fieldRGBB); ok {
		rgb.B = uint8(v)
	}
	return rgb, nil
}

// DecodePackedSegment decodes a batch of historical comments plus an
// optional "next" pointer (spec.md §6).
func DecodePackedSegment(data []byte) (model.PackedSegment, error) {
	fields, err := splitFields(data)
	if err != nil {
		return model.PackedSegment{}, err
	}

	var packed model.PackedSegment
	for _, b := range allBytes(fields, fieldPackedMessages) {
		msg, ok, err := DecodeChunkedMessage(b)
		if err != nil {
			return model.PackedSegment{}, err
		}
		if !ok {
			continue
		}
		packed.Messages = append(packed.Messages, msg)
	}

	if nextBytes, ok := lastBytes(fields, fieldPackedNext); ok {
		nextFields, err := splitFields(nextBytes)
		if err != nil {
			return model.PackedSegment{}, err
		}
		if v, ok := lastBytes(nextFields, fieldSegmentURI); ok {
			packed.NextURI = string(v)
		}
	}

	return packed, nil
}
