package codec

import (
	"bytes"
	"errors"
	"testing"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"plain", "aGVsbG8gd29ybGQ=", []byte("hello world")},
		{"data uri", "data:image/png;base64,aWFtIGltYWdlIGJ5dGVz", []byte("iam image bytes")},
		{"data uri with params", "data:text/plain;charset=utf-8;base64,aGk=", []byte("hi")},
		{"empty", "", []byte{}},
		{"empty after prefix", "data:application/octet-stream;base64,", []byte{}},
		{"binary", "AP8Q", []byte{0x00, 0xff, 0x10}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.input)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", tc.input, err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("Decode(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	inputs := map[string]string{
		"bad alphabet":          "not-base64!!",
		"missing padding":       "aGVsbG8",
		"truncated":             "aGVsbG8gd29ybGQ",
		"trailing bits":         "aGVsbG9=",
		"url alphabet":          "__8=",
		"line break":            "aGVs\nbG8=",
		"prefix without marker": "data:text/plain,hello",
		"double prefix":         "data:text/plain;base64,data:text/plain;base64,aGk=",
		"bad body after prefix": "data:image/png;base64,@@@@",
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := Decode(input)
			if !errors.Is(err, blobderr.ErrInvalidPayloadEncoding) {
				t.Fatalf("Decode(%q) = %q, %v; want ErrInvalidPayloadEncoding", input, got, err)
			}
		})
	}
}

func TestEncodeNeverPrefixed(t *testing.T) {
	raw, err := Decode("data:image/png;base64,aGk=")
	if err != nil {
		t.Fatal(err)
	}
	if got := Encode(raw); got != "aGk=" {
		t.Errorf("Encode = %q, want %q", got, "aGk=")
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1000),
	}
	for _, p := range payloads {
		got, err := Decode(Encode(p))
		if err != nil {
			t.Fatalf("round trip of %d bytes: %v", len(p), err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip of %d bytes mismatched", len(p))
		}
	}
}
