package incppect

import (
	"bytes"
	"testing"
)

func TestViewHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"int8", ViewInt8(-1), []byte{0xFF}},
		{"int16", ViewInt16(2), []byte{2, 0}},
		{"int32", ViewInt32(3), []byte{3, 0, 0, 0}},
		{"int64", ViewInt64(16), []byte{16, 0, 0, 0, 0, 0, 0, 0}},
		{"uint32", ViewUint32(0x01020304), []byte{4, 3, 2, 1}},
		{"float32", ViewFloat32(8.0), []byte{0, 0, 0x00, 0x41}},
		{"float64", ViewFloat64(16.0), []byte{0, 0, 0, 0, 0, 0, 0x30, 0x40}},
		{"string", ViewString("hi"), []byte("hi")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !bytes.Equal(tc.got, tc.want) {
				t.Errorf("view = %x, want %x", tc.got, tc.want)
			}
		})
	}
}

func TestDefaultInstanceIsStable(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() returned different instances")
	}
}
