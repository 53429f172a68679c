package main

import (
	"bytes"
	"testing"
)

const sampleEvent = `<?xml version="1.0"?><event version="2.0" uid="X1" type="a-f-G" time="2025-01-01T00:00:00Z" start="2025-01-01T00:00:00Z" stale="2025-01-01T00:01:00Z" how="m-g"><point lat="0" lon="0" hae="0" ce="9" le="9"/></event>`

func TestFramerSingleEventOneShot(t *testing.T) {
	f := NewCoTFramer(0, 0)
	events, err := f.Feed([]byte(sampleEvent))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	want := sampleEvent[bytes.Index([]byte(sampleEvent), []byte("<event")):]
	if string(events[0]) != want {
		t.Fatalf("got %q, want %q", events[0], want)
	}
}

func TestFramerByteAtATimeChunking(t *testing.T) {
	f := NewCoTFramer(0, 0)
	var events [][]byte
	for i := 0; i < len(sampleEvent); i++ {
		got, err := f.Feed([]byte{sampleEvent[i]})
		if err != nil {
			t.Fatalf("unexpected error at byte %d: %v", i, err)
		}
		events = append(events, got...)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	want := sampleEvent[bytes.Index([]byte(sampleEvent), []byte("<event")):]
	if string(events[0]) != want {
		t.Fatalf("got %q, want %q", events[0], want)
	}
}

func TestFramerMultipleConcatenatedEvents(t *testing.T) {
	one := `<event uid="A"><point lat="1" lon="1"/></event>`
	two := `<event uid="B"><point lat="2" lon="2"/></event>`
	f := NewCoTFramer(0, 0)

	events, err := f.Feed([]byte(one + two))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if string(events[0]) != one || string(events[1]) != two {
		t.Fatalf("got %q, %q", events[0], events[1])
	}
}

func TestFramerQuotedAttributeContainingAngleBrackets(t *testing.T) {
	doc := `<event uid="weird" note="a < b > c"><point lat="1" lon="1"/></event>`
	f := NewCoTFramer(0, 0)

	events, err := f.Feed([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || string(events[0]) != doc {
		t.Fatalf("got %v", events)
	}
}

func TestFramerCommentContainingLiteralCloseTag(t *testing.T) {
	doc := `<event uid="c"><!-- this mentions </event> but isn't one --><point lat="1" lon="1"/></event>`
	f := NewCoTFramer(0, 0)

	events, err := f.Feed([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || string(events[0]) != doc {
		t.Fatalf("got %v", events)
	}
}

func TestFramerCDATAContainingLiteralCloseTag(t *testing.T) {
	doc := `<event uid="d"><remarks><![CDATA[ contains </event> inside cdata ]]></remarks></event>`
	f := NewCoTFramer(0, 0)

	events, err := f.Feed([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || string(events[0]) != doc {
		t.Fatalf("got %v", events)
	}
}

func TestFramerOversizedRejection(t *testing.T) {
	doc := `<event uid="big">` + string(bytes.Repeat([]byte("x"), 5000)) + `</event>`
	f := NewCoTFramer(0, 4096)

	_, err := f.Feed([]byte(doc))
	if err == nil {
		t.Fatalf("expected oversized error")
	}
	fe, ok := err.(*FramingError)
	if !ok || fe.Kind != FramingOversized {
		t.Fatalf("got %v, want FramingOversized", err)
	}
}

func TestFramerTruncatedAtClose(t *testing.T) {
	f := NewCoTFramer(0, 0)
	if _, err := f.Feed([]byte(`<event uid="partial"><point lat="1"`)); err != nil {
		t.Fatalf("unexpected error mid-stream: %v", err)
	}
	if err := f.Close(); err == nil {
		t.Fatalf("expected truncated error on close with partial event buffered")
	}
}

func TestFramerCloseCleanWhenIdle(t *testing.T) {
	f := NewCoTFramer(0, 0)
	if _, err := f.Feed([]byte(sampleEvent)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error on clean close: %v", err)
	}
}

func TestFramerSelfClosingEvent(t *testing.T) {
	doc := `<event uid="empty" type="a-f-G"/>`
	f := NewCoTFramer(0, 0)

	events, err := f.Feed([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || string(events[0]) != doc {
		t.Fatalf("got %v", events)
	}
}

func TestFramerNestedNonEventTagsDoNotAffectDepth(t *testing.T) {
	doc := `<event uid="n"><detail><contact callsign="x"/><a href="http://example/event"></a></detail></event>`
	f := NewCoTFramer(0, 0)

	events, err := f.Feed([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || string(events[0]) != doc {
		t.Fatalf("got %v", events)
	}
}

func TestFramerUndersizedRejection(t *testing.T) {
	doc := `<event uid="tiny"/>`
	f := NewCoTFramer(4096, 0)

	_, err := f.Feed([]byte(doc))
	if err == nil {
		t.Fatalf("expected undersized event to be rejected")
	}
	fe, ok := err.(*FramingError)
	if !ok || fe.Kind != FramingMalformed {
		t.Fatalf("got %v, want FramingMalformed", err)
	}
}

func TestFramerInvalidUTF8Rejection(t *testing.T) {
	doc := "<event uid=\"bad\">\xff\xfe</event>"
	f := NewCoTFramer(0, 0)

	_, err := f.Feed([]byte(doc))
	if err == nil {
		t.Fatalf("expected invalid UTF-8 to be rejected")
	}
	fe, ok := err.(*FramingError)
	if !ok || fe.Kind != FramingMalformed {
		t.Fatalf("got %v, want FramingMalformed", err)
	}
}
