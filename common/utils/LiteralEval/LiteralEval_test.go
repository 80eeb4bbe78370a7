package LiteralEval

import (
	"reflect"
	"testing"
)

func TestLiteralEvalScalars(t *testing.T) {
	cases := map[string]interface{}{
		"true":   true,
		"off":    false,
		"null":   nil,
		"42":     int64(42),
		"0.25":   0.25,
		"'soft'": "soft",
		"plain":  "plain",
		"":       "",
	}
	for in, want := range cases {
		got, err := LiteralEval(in)
		if err != nil {
			t.Fatalf("LiteralEval(%q) error: %v", in, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("LiteralEval(%q)=%#v want %#v", in, got, want)
		}
	}
}

func TestLiteralEvalList(t *testing.T) {
	got, err := LiteralEval(`["kafka-1:9092", 'kafka-2:9092', 3]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []interface{}{"kafka-1:9092", "kafka-2:9092", int64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
	if _, err := LiteralEval("[1, 2"); err == nil {
		t.Fatalf("expected error for unterminated list")
	}
}
