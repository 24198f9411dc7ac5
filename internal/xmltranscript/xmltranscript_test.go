package xmltranscript

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nicolive/ndgr-client/internal/model"
)

func baseComment() model.Comment {
	return model.Comment{
		ID:            "c1",
		At:            time.Unix(1700000000, 123456000).UTC(),
		LiveID:        345479473,
		RawUserID:     12345,
		HashedUserID:  "a:QKQvAEkmnovz",
		AccountStatus: model.AccountStandard,
		No:            42,
		Vpos:          18336492,
		Position:      model.PositionNaka,
		Size:          model.SizeMedium,
		Color:         model.Color{Named: "white"},
		Font:          model.FontDefont,
		Opacity:       model.OpacityNormal,
		Content:       "hello",
	}
}

func TestWriteComment_DefaultsProduceNoMailTokens(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteComment(&buf, baseComment()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `thread="lv345479473"`) {
		t.Fatalf("missing thread attr: %s", out)
	}
	if !strings.Contains(out, `no="42"`) {
		t.Fatalf("missing no attr: %s", out)
	}
	if !strings.Contains(out, `date="1700000000"`) {
		t.Fatalf("missing date attr: %s", out)
	}
	if !strings.Contains(out, `date_usec="123456"`) {
		t.Fatalf("missing date_usec attr: %s", out)
	}
	if !strings.Contains(out, `user_id="12345"`) {
		t.Fatalf("expected raw user id as decimal: %s", out)
	}
	if strings.Contains(out, `mail=`) {
		t.Fatalf("expected no mail attribute for all-default comment: %s", out)
	}
	if strings.Contains(out, `premium=`) || strings.Contains(out, `anonymity=`) {
		t.Fatalf("expected no premium/anonymity attrs: %s", out)
	}
	if !strings.Contains(out, ">hello</chat>") {
		t.Fatalf("expected content as element text: %s", out)
	}
}

func TestWriteComment_AnonymizedPremiumAndNonDefaultModifiers(t *testing.T) {
	c := baseComment()
	c.RawUserID = 0
	c.AccountStatus = model.AccountPremium
	c.Position = model.PositionShita
	c.Size = model.SizeBig
	c.Color = model.Color{Named: "red"}
	c.Font = model.FontMincho
	c.Opacity = model.OpacityTranslucent

	var buf bytes.Buffer
	if err := WriteComment(&buf, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `mail="184 shita big red mincho translucent"`) {
		t.Fatalf("unexpected mail attribute: %s", out)
	}
	if !strings.Contains(out, `premium="1"`) {
		t.Fatalf("expected premium=1: %s", out)
	}
	if !strings.Contains(out, `anonymity="1"`) {
		t.Fatalf("expected anonymity=1: %s", out)
	}
	if !strings.Contains(out, `user_id="a:QKQvAEkmnovz"`) {
		t.Fatalf("expected hashed user id for anonymized comment: %s", out)
	}
}

func TestWriteComment_FullColorRendersHex(t *testing.T) {
	c := baseComment()
	c.Color = model.Color{RGB: &model.RGBColor{R: 0xFF, G: 0x00, B: 0x80}}

	var buf bytes.Buffer
	if err := WriteComment(&buf, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "#ff0080") {
		t.Fatalf("expected hex color token: %s", buf.String())
	}
}

func TestWriteComment_StripsControlCharsButKeepsWhitespace(t *testing.T) {
	c := baseComment()
	c.Content = "a\x00b\tc\nd\x7fe"

	var buf bytes.Buffer
	if err := WriteComment(&buf, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "a") || strings.Contains(buf.String(), "\x00") || strings.Contains(buf.String(), "\x7f") {
		t.Fatalf("expected control chars stripped: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "\tc\nd") {
		t.Fatalf("expected tab and newline preserved: %q", buf.String())
	}
}

func TestWriteAll_OrdersAscendingByTimestampNoWrapper(t *testing.T) {
	later := baseComment()
	later.ID = "later"
	later.At = time.Unix(1700000100, 0).UTC()
	later.Content = "later"

	earlier := baseComment()
	earlier.ID = "earlier"
	earlier.At = time.Unix(1700000000, 0).UTC()
	earlier.Content = "earlier"

	var buf bytes.Buffer
	if err := WriteAll(&buf, []model.Comment{later, earlier}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	earlierIdx := strings.Index(out, ">earlier<")
	laterIdx := strings.Index(out, ">later<")
	if earlierIdx < 0 || laterIdx < 0 || earlierIdx > laterIdx {
		t.Fatalf("expected ascending order, got: %s", out)
	}
	if strings.HasPrefix(out, "<?xml") || strings.Contains(out, "<packet") {
		t.Fatalf("expected no XML prolog or wrapper element: %s", out)
	}
}
