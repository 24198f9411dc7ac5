// Package xmltranscript renders Comments into the legacy niconico XML
// transcript format (spec.md §6, a collaborator surface only): one <chat>
// element per comment, concatenated in ascending (date, date_usec) order
// with no outer wrapper or XML prolog. Grounded on stdlib encoding/xml —
// no example repo in the pack wires a third-party XML library for this;
// mjnovice-aistore's S3-compat object listing reaches for the same stdlib
// package for its own XML responses, confirming encoding/xml as the
// ecosystem's own default rather than a gap this module should paper over
// with a dependency nothing in the corpus uses for XML.
package xmltranscript

import (
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nicolive/ndgr-client/internal/model"
)

// chatElement mirrors the legacy XMLCompatibleComment shape from
// original_source/ndgr_client/constants.py, field for field.
type chatElement struct {
	XMLName   xml.Name `xml:"chat"`
	Thread    string   `xml:"thread,attr"`
	No        int64    `xml:"no,attr"`
	Vpos      int64    `xml:"vpos,attr"`
	Date      int64    `xml:"date,attr"`
	DateUsec  int64    `xml:"date_usec,attr"`
	UserID    string   `xml:"user_id,attr"`
	Mail      string   `xml:"mail,attr,omitempty"`
	Premium   string   `xml:"premium,attr,omitempty"`
	Anonymity string   `xml:"anonymity,attr,omitempty"`
	Content   string   `xml:",innerxml"`
}

// contentEscaper escapes element text by hand so that tab, LF and CR stay
// literal characters (encoding/xml's chardata escaping would turn them into
// character references).
var contentEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// WriteAll renders comments as the concatenation of their <chat> elements,
// sorted ascending by (date, date_usec) — Comment.At already carries both
// components, so sorting by At alone satisfies the ordering requirement.
// The input slice is not mutated.
func WriteAll(w io.Writer, comments []model.Comment) error {
	sorted := make([]model.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	for _, c := range sorted {
		if err := WriteComment(w, c); err != nil {
			return err
		}
	}
	return nil
}

// WriteComment renders one comment's <chat> element.
func WriteComment(w io.Writer, c model.Comment) error {
	elem := toChatElement(c)
	b, err := xml.Marshal(elem)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func toChatElement(c model.Comment) chatElement {
	elem := chatElement{
		Thread:   "lv" + strconv.FormatInt(c.LiveID, 10),
		No:       c.No,
		Vpos:     c.Vpos,
		Date:     c.At.Unix(),
		DateUsec: int64(c.At.Nanosecond() / 1000),
		UserID:   c.UserID(),
		Mail:     mailCommand(c),
		Content:  contentEscaper.Replace(stripControlChars(c.Content)),
	}
	if c.AccountStatus == model.AccountPremium {
		elem.Premium = "1"
	}
	if c.AnonymizedUser() {
		elem.Anonymity = "1"
	}
	return elem
}

// mailCommand builds the space-joined command token list (spec.md §6):
// "184" if anonymized, position if not naka, size if not medium, color if
// not white, font if not defont, "translucent" if opacity is Translucent.
func mailCommand(c model.Comment) string {
	var tokens []string
	if c.AnonymizedUser() {
		tokens = append(tokens, "184")
	}
	if c.Position != model.PositionNaka {
		tokens = append(tokens, string(c.Position))
	}
	if c.Size != model.SizeMedium {
		tokens = append(tokens, string(c.Size))
	}
	if color := c.Color.String(); color != "white" {
		tokens = append(tokens, color)
	}
	if c.Font != model.FontDefont {
		tokens = append(tokens, string(c.Font))
	}
	if c.Opacity == model.OpacityTranslucent {
		tokens = append(tokens, "translucent")
	}

	var buf bytes.Buffer
	for i, t := range tokens {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(t)
	}
	return buf.String()
}

// stripControlChars removes the XML-incompatible control characters spec.md
// §6 names (U+0000-U+0008, U+000B, U+000C, U+000E-U+001F, U+007F),
// preserving tab, LF, and CR.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if isStrippedControlChar(r) {
			return -1
		}
		return r
	}, s)
}

func isStrippedControlChar(r rune) bool {
	switch {
	case r >= 0x00 && r <= 0x08:
		return true
	case r == 0x0B || r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	default:
		return false
	}
}
