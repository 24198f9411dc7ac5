// Package model holds the data types shared between the public ndgr-client
// facade and its internal components, so that neither side of that boundary
// needs to import the other.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// ProgramStatus is the lifecycle state of a nicolive program.
type ProgramStatus string

const (
	StatusBeforeRelease ProgramStatus = "BEFORE_RELEASE"
	StatusOnAir         ProgramStatus = "ON_AIR"
	StatusEnded         ProgramStatus = "ENDED"
)

// ProgramInfo is an immutable snapshot of a program, parsed from its watch
// page's embedded JSON (spec.md §3, §6).
type ProgramInfo struct {
	ProgramID        string
	Title            string
	Description      string
	Status           ProgramStatus
	OpenTime         time.Time
	BeginTime        time.Time
	EndTime          time.Time
	ScheduledEndTime time.Time
	VposBaseTime     time.Time
	WebSocketURL     string
}

// Timestamp is a server timestamp with seconds+nanoseconds precision, as
// carried by ViewEntry and ChunkedMessage fields (spec.md §3).
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// ViewEntry is the tagged union decoded from one record of the View stream
// (spec.md §3, §4.E). Exactly one of Segment, Next, Backward is non-nil;
// when all are nil the entry is an unrecognized variant to be ignored.
type ViewEntry struct {
	Segment  *SegmentDescriptor
	Next     *ReadyForNext
	Backward *BackwardURI
}

// SegmentDescriptor identifies one live comment segment stream.
type SegmentDescriptor struct {
	URI   string
	From  Timestamp
	Until Timestamp
}

// ReadyForNext carries the continuation timestamp for the next View slice.
type ReadyForNext struct {
	At int64 // seconds since epoch
}

// BackwardURI is the entry point into the packed historical segment chain.
type BackwardURI struct {
	URI string
}

// ChunkedMessage is the server wire record drained from a segment stream or
// a packed backward segment (spec.md §3, §6).
type ChunkedMessage struct {
	MetaID       string
	MetaAt       Timestamp
	MetaLiveID   int64
	Chat         *Chat
	IsOverflowed bool
}

// Chat is the admissible payload of a ChunkedMessage (spec.md §3, §6).
type Chat struct {
	RawUserID     int64
	HashedUserID  string
	AccountStatus AccountStatus
	No            int64
	Vpos          int64
	Content       string
	Position      Position
	Size          Size
	Font          Font
	Opacity       Opacity
	NamedColor    string
	FullColor     *RGBColor
}

// RGBColor is a 24-bit color triple.
type RGBColor struct {
	R, G, B uint8
}

type AccountStatus string

const (
	AccountStandard AccountStatus = "Standard"
	AccountPremium  AccountStatus = "Premium"
)

type Position string

const (
	PositionNaka  Position = "naka"
	PositionShita Position = "shita"
	PositionUe    Position = "ue"
)

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeBig    Size = "big"
)

type Font string

const (
	FontDefont Font = "defont"
	FontMincho Font = "mincho"
	FontGothic Font = "gothic"
)

type Opacity string

const (
	OpacityNormal      Opacity = "Normal"
	OpacityTranslucent Opacity = "Translucent"
)

// Color is the normalized render color of a Comment: either a named palette
// value or a 24-bit RGB triple, never both (spec.md §3 color policy).
type Color struct {
	Named string
	RGB   *RGBColor
}

// String renders the color the way the legacy XML transcript expects: the
// named literal, or "#RRGGBB" for a full color.
func (c Color) String() string {
	if c.RGB != nil {
		return rgbHex(*c.RGB)
	}
	if c.Named != "" {
		return c.Named
	}
	return "white"
}

func rgbHex(c RGBColor) string {
	const hex = "0123456789abcdef"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	put := func(i int, v uint8) {
		b[i] = hex[v>>4]
		b[i+1] = hex[v&0xF]
	}
	put(1, c.R)
	put(3, c.G)
	put(5, c.B)
	return string(b)
}

// Comment is the normalized, user-facing record produced from an admissible
// ChunkedMessage (spec.md §3).
type Comment struct {
	ID            string
	At            time.Time
	LiveID        int64
	RawUserID     int64
	HashedUserID  string
	AccountStatus AccountStatus
	No            int64
	Vpos          int64
	Position      Position
	Size          Size
	Color         Color
	Font          Font
	Opacity       Opacity
	Content       string
}

// AnonymizedUser reports whether the comment was posted under a "184"
// anonymized identity (RawUserID == 0, spec.md GLOSSARY).
func (c Comment) AnonymizedUser() bool {
	return c.RawUserID == 0
}

// UserID is the raw user id as a decimal string if known, else the hashed id.
func (c Comment) UserID() string {
	if c.RawUserID > 0 {
		return strconv.FormatInt(c.RawUserID, 10)
	}
	return c.HashedUserID
}

// String renders a two-line human-readable form for CLI/debug output,
// following the field order and timestamp-then-body shape of the original
// client's own comment rendering.
func (c Comment) String() string {
	return fmt.Sprintf(
		"[%s][No:%d] %s\nUser: %s | Command: %s %s %s %s",
		c.At.Format("2006/01/02 15:04:05.000000"), c.No, c.Content,
		c.UserID(), c.Position, c.Size, c.Color, c.Font,
	)
}

// PackedSegment is a batch of historical comments plus an optional pointer
// to the next (older) batch (spec.md §6).
type PackedSegment struct {
	Messages []ChunkedMessage
	NextURI  string
}

// NormalizeComment converts an admissible ChunkedMessage into the
// user-facing Comment (spec.md §4.F step 3). Callers (internal/segment,
// internal/backward) are expected to have already confirmed msg.Chat != nil
// via the wire package's admissibility check.
func NormalizeComment(msg ChunkedMessage) Comment {
	chat := msg.Chat
	color := Color{}
	if chat.FullColor != nil {
		color.RGB = chat.FullColor
	} else {
		color.Named = chat.NamedColor
	}

	return Comment{
		ID:            msg.MetaID,
		At:            msg.MetaAt.Time(),
		LiveID:        msg.MetaLiveID,
		RawUserID:     chat.RawUserID,
		HashedUserID:  chat.HashedUserID,
		AccountStatus: chat.AccountStatus,
		No:            chat.No,
		Vpos:          chat.Vpos,
		Position:      chat.Position,
		Size:          chat.Size,
		Color:         color,
		Font:          chat.Font,
		Opacity:       chat.Opacity,
		Content:       chat.Content,
	}
}
