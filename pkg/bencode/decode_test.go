package bencode_test

import (
	"reflect"
	"testing"

	"github.com/bitforge/gossamer/pkg/bencode"
)

// taggedFields exercises every bencode struct-tag behavior in one type:
// a renamed field, a field keyed by a literal "-" (tag "-,"), untagged
// fields using their Go names, and a field hidden entirely.
type taggedFields struct {
	A string `bencode:"B"`
	B string `bencode:"-,"`

	C string

	X string
	Y string
	Z string `bencode:"-"`
}

type decodeCase struct {
	in  string
	ptr any
	out any
}

func checkDecode(t *testing.T, cases []decodeCase) {
	t.Helper()
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			if err := bencode.Unmarshal([]byte(c.in), c.ptr); err != nil {
				t.Fatalf("Unmarshal(%q): %v", c.in, err)
			}

			got := reflect.ValueOf(c.ptr).Elem().Interface()
			if !reflect.DeepEqual(got, c.out) {
				t.Errorf("Unmarshal(%q) = %#v, want %#v", c.in, got, c.out)
			}
		})
	}
}

func TestDecodeIntoScalars(t *testing.T) {
	checkDecode(t, []decodeCase{
		{in: "i123e", ptr: new(int), out: 123},
		{in: "i-123e", ptr: new(int), out: -123},
		{in: "i0e", ptr: new(int), out: 0},
		{in: "0:", ptr: new(string), out: ""},
		{in: "3:cat", ptr: new(string), out: "cat"},
	})
}

func TestDecodeContainersIntoAny(t *testing.T) {
	checkDecode(t, []decodeCase{
		{in: "le", ptr: new(any), out: []any(nil)},
		{in: "li123e3:cate", ptr: new(any), out: []any{int64(123), "cat"}},
		{in: "lli123e3:catee", ptr: new(any), out: []any{[]any{int64(123), "cat"}}},
		{in: "de", ptr: new(any), out: map[string]any{}},
		{in: "d3:cati123e3:dogi-123ee", ptr: new(any), out: map[string]any{"cat": int64(123), "dog": int64(-123)}},
		{in: "d1:ad1:ai123e1:b3:catee", ptr: new(any), out: map[string]any{"a": map[string]any{"a": int64(123), "b": "cat"}}},
	})
}

func TestDecodeIntoTaggedStruct(t *testing.T) {
	checkDecode(t, []decodeCase{
		{
			in:  "d1:-3:rat1:B3:bat1:X3:cat1:Y3:dog1:Z3:nile",
			ptr: new(taggedFields),
			out: taggedFields{A: "bat", B: "rat", X: "cat", Y: "dog"},
		},
	})
}

// TestDecodeListOverflowingFixedArrayDiscardsExtras exercises list
// elements past a fixed-size array target's length: they must be
// scanned and discarded, not left for the caller to crash on.
func TestDecodeListOverflowingFixedArrayDiscardsExtras(t *testing.T) {
	checkDecode(t, []decodeCase{
		{in: "li1ei2ei3ee", ptr: new([1]int), out: [1]int{1}},
		{in: "lli1eeli2eeli3eee", ptr: new([1][]int), out: [1][]int{{1}}},
		{in: "ld1:ai1eed1:bi2eee", ptr: new([0]map[string]int), out: [0]map[string]int{}},
	})
}
