package boundary

import (
	"strconv"
	"testing"
	"time"
)

func TestToNumber(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{nil, 0, false},
		{"", 0, false},
		{"42", 42, true},
		{"  3.5  ", 3.5, true},
		{float64(7), 7, true},
		{"not-a-number", 0, false},
	}
	for _, c := range cases {
		got, ok := ToNumber(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("ToNumber(%#v) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestToDate(t *testing.T) {
	if _, ok := ToDate(nil); ok {
		t.Fatal("nil should not parse")
	}
	if _, ok := ToDate(""); ok {
		t.Fatal("empty string should not parse")
	}

	want := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	got, ok := ToDate(want.Format(time.RFC3339))
	if !ok || !got.Equal(want) {
		t.Fatalf("ToDate(RFC3339) = (%v, %v), want (%v, true)", got, ok, want)
	}

	got, ok = ToDate(float64(want.Unix()))
	if !ok || !got.Equal(want) {
		t.Fatalf("ToDate(unix float) = (%v, %v), want (%v, true)", got, ok, want)
	}

	got, ok = ToDate(strconv.FormatInt(want.Unix(), 10))
	if !ok || !got.Equal(want) {
		t.Fatalf("ToDate(unix string) = (%v, %v), want (%v, true)", got, ok, want)
	}
}

func TestToBoolean(t *testing.T) {
	truthyInputs := []interface{}{"yes", "Y", "1", "true", "TRUE", true, float64(1)}
	for _, in := range truthyInputs {
		if !ToBoolean(in) {
			t.Errorf("ToBoolean(%#v) = false, want true", in)
		}
	}

	falsyInputs := []interface{}{nil, "", "no", "0", "maybe", false, float64(0)}
	for _, in := range falsyInputs {
		if ToBoolean(in) {
			t.Errorf("ToBoolean(%#v) = true, want false", in)
		}
	}
}
