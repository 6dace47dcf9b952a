package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	msg := AppendCustom(nil, []byte("hello"))

	kind, body, err := SplitMessage(msg)
	if err != nil {
		t.Fatalf("SplitMessage() error = %v", err)
	}
	if kind != KindCustom {
		t.Errorf("kind = %v, want %v", kind, KindCustom)
	}
	if !bytes.Equal(body, []byte("hello")) {
		t.Errorf("body = %q, want %q", body, "hello")
	}

	if _, _, err := SplitMessage([]byte{1, 2}); err != ErrShortMessage {
		t.Errorf("short message: error = %v, want ErrShortMessage", err)
	}
}

func TestParseRegister(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []RegisterEntry
		wantErr bool
	}{
		{
			name: "single_no_indices",
			body: "var_int32 7 0",
			want: []RegisterEntry{{Path: "var_int32", RequestID: 7}},
		},
		{
			name: "with_indices",
			body: "grid[%d].cell[%d] 12 2 3 -1",
			want: []RegisterEntry{{Path: "grid[%d].cell[%d]", RequestID: 12, Idxs: []int32{3, -1}}},
		},
		{
			name: "multiple_groups",
			body: " a 1 0  b 2 1 5 ",
			want: []RegisterEntry{
				{Path: "a", RequestID: 1},
				{Path: "b", RequestID: 2, Idxs: []int32{5}},
			},
		},
		{
			name:    "truncated_trailing_group_keeps_leading",
			body:    "a 1 0 b 2",
			want:    []RegisterEntry{{Path: "a", RequestID: 1}},
			wantErr: true,
		},
		{
			name:    "missing_indices",
			body:    "a 1 3 4",
			wantErr: true,
		},
		{
			name:    "garbage_request_id",
			body:    "a xx 0",
			wantErr: true,
		},
		{
			name: "empty",
			body: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRegister([]byte(tc.body))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseRegister() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrTruncatedGroup) {
				t.Errorf("error %v does not wrap ErrTruncatedGroup", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("entries = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	entries := []RegisterEntry{
		{Path: "incppect.nclients", RequestID: 1},
		{Path: "incppect.ip_address[%d]", RequestID: 2, Idxs: []int32{-1}},
	}

	msg := AppendRegister(nil, entries)
	kind, body, err := SplitMessage(msg)
	if err != nil || kind != KindRegister {
		t.Fatalf("SplitMessage() = %v, %v", kind, err)
	}

	got, err := ParseRegister(body)
	if err != nil {
		t.Fatalf("ParseRegister() error = %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Errorf("entries = %+v, want %+v", got, entries)
	}
}

func TestParseActivate(t *testing.T) {
	msg := AppendActivate(nil, []int32{3, 7, -2})
	kind, body, err := SplitMessage(msg)
	if err != nil || kind != KindActivate {
		t.Fatalf("SplitMessage() = %v, %v", kind, err)
	}

	ids, err := ParseActivate(body)
	if err != nil {
		t.Fatalf("ParseActivate() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []int32{3, 7, -2}) {
		t.Errorf("ids = %v, want [3 7 -2]", ids)
	}

	if _, err := ParseActivate([]byte{1, 2, 3}); err != ErrSizeMismatch {
		t.Errorf("ragged body: error = %v, want ErrSizeMismatch", err)
	}

	ids, err = ParseActivate(nil)
	if err != nil || len(ids) != 0 {
		t.Errorf("empty body: ids = %v, err = %v, want empty, nil", ids, err)
	}
}
