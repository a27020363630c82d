package events_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
	"github.com/butvinm-itmo/highload-sub001/internal/events/eventstest"
)

func TestEncodeDecodeEveryKind(t *testing.T) {
	for _, ev := range eventstest.Samples() {
		t.Run(ev.Name(), func(t *testing.T) {
			msg, err := events.Encode(ev)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if msg.Key != ev.Key() {
				t.Fatalf("expected key %q, got %q", ev.Key(), msg.Key)
			}
			if msg.Headers[events.HeaderEventType] != ev.EventType() {
				t.Fatalf("unexpected eventType header %q", msg.Headers[events.HeaderEventType])
			}
			if _, err := time.Parse(time.RFC3339Nano, msg.Headers[events.HeaderTimestamp]); err != nil {
				t.Fatalf("timestamp header not ISO-8601: %v", err)
			}
			got, err := events.Decode(msg.Value, msg.Headers)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.Meta().Timestamp.Equal(ev.Meta().Timestamp) {
				t.Fatalf("timestamp changed: %v != %v", got.Meta().Timestamp, ev.Meta().Timestamp)
			}
			want := events.Stamp(ev, ev.Meta().EventID, got.Meta().Timestamp)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("decoded %#v, want %#v", got, want)
			}
		})
	}
}

func TestEncodeKeysInterpretationBySpread(t *testing.T) {
	ev := eventstest.Stamped(events.InterpretationCreated{InterpretationID: "i1", SpreadID: "s1"})
	msg, err := events.Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Key != "s1" {
		t.Fatalf("expected spread id as key, got %q", msg.Key)
	}
}

func TestEncodeRequiresStamp(t *testing.T) {
	if _, err := events.Encode(events.UserDeleted{UserID: "u1"}); err == nil {
		t.Fatalf("expected error for unstamped event")
	}
}

func TestDecodeRejectsBadRecords(t *testing.T) {
	msg, err := events.Encode(eventstest.Stamped(events.UserDeleted{UserID: "u1"}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := []struct {
		name    string
		value   []byte
		headers map[string]string
	}{
		{"missing header", msg.Value, map[string]string{}},
		{"unknown header", msg.Value, map[string]string{events.HeaderEventType: "ARCHIVED"}},
		{"header mismatch", msg.Value, map[string]string{events.HeaderEventType: events.TypeCreated}},
		{"malformed json", []byte("{not json"), msg.Headers},
		{"unknown aggregate", []byte(`{"eventId":"e1","eventType":"DELETED","aggregate":"deck","payload":{}}`), msg.Headers},
		{"missing event id", []byte(`{"eventType":"DELETED","aggregate":"user","payload":{"userId":"u1"}}`), msg.Headers},
		{"missing aggregate id", []byte(`{"eventId":"e1","eventType":"DELETED","aggregate":"user","payload":{}}`), msg.Headers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := events.Decode(tt.value, tt.headers)
			var decErr *events.DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if !strings.HasPrefix(decErr.Error(), "decode event: ") {
				t.Fatalf("unexpected message %q", decErr.Error())
			}
		})
	}
}

func TestSelfAuthored(t *testing.T) {
	ev := events.InterpretationCreated{SpreadAuthorID: "a", InterpretationAuthorID: "a"}
	if !ev.SelfAuthored() {
		t.Fatalf("expected self authored")
	}
	ev.InterpretationAuthorID = "b"
	if ev.SelfAuthored() {
		t.Fatalf("expected foreign author")
	}
}

func TestPreviewCountsCharacters(t *testing.T) {
	short := "hello"
	if got := events.Preview(short); got != short {
		t.Fatalf("short text changed: %q", got)
	}
	long := strings.Repeat("ж", events.PreviewLimit+20)
	got := events.Preview(long)
	if n := len([]rune(got)); n != events.PreviewLimit {
		t.Fatalf("expected %d characters, got %d", events.PreviewLimit, n)
	}
	if !strings.HasPrefix(long, got) {
		t.Fatalf("preview is not a prefix")
	}
}
