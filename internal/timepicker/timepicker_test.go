package timepicker

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		for minute := 0; minute < 60; minute++ {
			v := Value{Name: "record", Hour: hour, Minute: minute}
			got, err := Decode(Encode(v))
			if err != nil {
				t.Fatalf("decode failed for %02d:%02d: %v", hour, minute, err)
			}
			if got != v {
				t.Fatalf("round trip mismatch: sent %+v, got %+v", v, got)
			}
		}
	}
}

func TestEncodeDecodeConfirmed(t *testing.T) {
	v := Value{Name: "record", Hour: 7, Minute: 30, Confirmed: true}
	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Confirmed {
		t.Error("confirmed flag lost in round trip")
	}
}

func TestDecodeNameWithSeparator(t *testing.T) {
	v := Value{Name: "record:extra", Hour: 1, Minute: 2}
	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "record:extra" {
		t.Errorf("expected name %q, got %q", "record:extra", got.Name)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong prefix", "poll:v1:1:2:0:record"},
		{"wrong version", "time:v2:1:2:0:record"},
		{"too few fields", "time:v1:1:2:0"},
		{"hour not numeric", "time:v1:aa:2:0:record"},
		{"hour too large", "time:v1:24:2:0:record"},
		{"hour negative", "time:v1:-1:2:0:record"},
		{"minute too large", "time:v1:1:60:0:record"},
		{"bad confirmed flag", "time:v1:1:2:yes:record"},
		{"empty name", "time:v1:1:2:0:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.token); !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode for %q, got %v", tc.token, err)
			}
		})
	}
}

func TestWraparound(t *testing.T) {
	v := Value{Name: "record", Hour: 23, Minute: 59}
	if got := IncrementHour(v).Hour; got != 0 {
		t.Errorf("expected hour 23 -> 0, got %d", got)
	}
	if got := IncrementMinute(v).Minute; got != 0 {
		t.Errorf("expected minute 59 -> 0, got %d", got)
	}
	v = Value{Name: "record", Hour: 0, Minute: 0}
	if got := DecrementHour(v).Hour; got != 23 {
		t.Errorf("expected hour 0 -> 23, got %d", got)
	}
	if got := DecrementMinute(v).Minute; got != 59 {
		t.Errorf("expected minute 0 -> 59, got %d", got)
	}
}

func TestMutationsTouchOnlyTheirField(t *testing.T) {
	v := Value{Name: "record", Hour: 10, Minute: 20}
	if got := IncrementHour(v); got.Minute != 20 || got.Name != "record" || got.Confirmed {
		t.Errorf("IncrementHour changed unrelated fields: %+v", got)
	}
	if got := DecrementMinute(v); got.Hour != 10 || got.Name != "record" || got.Confirmed {
		t.Errorf("DecrementMinute changed unrelated fields: %+v", got)
	}
	if got := MarkConfirmed(v); got.Hour != 10 || got.Minute != 20 || !got.Confirmed {
		t.Errorf("MarkConfirmed changed unrelated fields: %+v", got)
	}
}

func TestKeyboardLayout(t *testing.T) {
	v := Value{Name: "record", Hour: 9, Minute: 41}
	kb := Keyboard(v)

	if len(kb) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(kb))
	}
	for i, want := range []int{2, 2, 2, 1} {
		if len(kb[i]) != want {
			t.Errorf("row %d: expected %d buttons, got %d", i, want, len(kb[i]))
		}
	}

	for i, row := range kb {
		for j, btn := range row {
			if _, err := Decode(btn.Data); err != nil {
				t.Errorf("button (%d,%d) token does not decode: %v", i, j, err)
			}
		}
	}

	up, err := Decode(kb[0][0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if up.Hour != 10 || up.Minute != 41 {
		t.Errorf("increase-hour button carries %+v", up)
	}
	noop, err := Decode(kb[1][0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if noop != v {
		t.Errorf("display button should carry the unchanged value, got %+v", noop)
	}
	ok, err := Decode(kb[3][0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if !ok.Confirmed || ok.Hour != 9 || ok.Minute != 41 {
		t.Errorf("confirm button carries %+v", ok)
	}
}

func TestToUTCInstant(t *testing.T) {
	// 2024-06-15 is well inside EEST (UTC+3).
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	got, err := ToUTCInstant(9, 30, "Europe/Kyiv", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 6, 15, 6, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestToUTCInstantFixedOffset(t *testing.T) {
	now := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC)
	// Etc/GMT-3 is UTC+3, so local "today" is already Jan 11.
	got, err := ToUTCInstant(8, 0, "Etc/GMT-3", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 11, 5, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestToUTCInstantUnknownZone(t *testing.T) {
	if _, err := ToUTCInstant(9, 0, "Nowhere/Imaginary", time.Now()); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
