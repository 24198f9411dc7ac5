package ndgr

import (
	"github.com/nicolive/ndgr-client/internal/channelmap"
	"github.com/nicolive/ndgr-client/internal/model"
)

// Comment is a single normalized live comment (spec.md §3).
type Comment = model.Comment

// ProgramInfo is an immutable snapshot of a program's metadata (spec.md §3).
type ProgramInfo = model.ProgramInfo

// ProgramStatus is a program's lifecycle state.
type ProgramStatus = model.ProgramStatus

// Program lifecycle states (spec.md §3).
const (
	StatusBeforeRelease = model.StatusBeforeRelease
	StatusOnAir         = model.StatusOnAir
	StatusEnded         = model.StatusEnded
)

// Position, Size, Font, Opacity, AccountStatus mirror a comment's display
// modifiers (spec.md §3, §6).
type (
	Position      = model.Position
	Size          = model.Size
	Font          = model.Font
	Opacity       = model.Opacity
	AccountStatus = model.AccountStatus
	Color         = model.Color
	RGBColor      = model.RGBColor
)

// ProgramListing is one entry from ListProgramsOn (spec.md §4.I
// listProgramsOn).
type ProgramListing = channelmap.ProgramListing
