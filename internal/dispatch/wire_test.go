package dispatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"RelayClient/internal/session"
	"RelayClient/internal/types"
)

// Vtable slots rewritten by the adversarial cases below.
const (
	responseSessionSlot = 8
	sessionNodesSlot    = 8
)

// withNodesLength rewrites the nodes vector length of the session in raw.
func withNodesLength(raw []byte, n uint32) []byte {
	tab := types.GetRootAsDispatchResponse(raw, 0).Session(nil).Table()
	vec := tab.Vector(flatbuffers.UOffsetT(tab.Offset(sessionNodesSlot)))
	binary.LittleEndian.PutUint32(raw[vec-flatbuffers.SizeUOffsetT:], n)

	return raw
}

func TestRequestRoundTrip(t *testing.T) {
	want := NewRequest(testCredential(), "0021", 120)

	got, err := DecodeRequest(EncodeRequest(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	s := testSession(NewRequest(testCredential(), "0021", 0), 4)

	got, err := DecodeResponse(EncodeResponse(Response{Status: StatusOK, Session: s}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Status != StatusOK || !reflect.DeepEqual(got.Session, s) {
		t.Errorf("got %+v", got)
	}
}

func TestErrorResponseOmitsSession(t *testing.T) {
	s := testSession(NewRequest(testCredential(), "0021", 0), 4)

	got, err := DecodeResponse(EncodeResponse(Response{Status: StatusNoNodes, Message: "none", Session: s}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Session != nil || got.Message != "none" || got.Status != StatusNoNodes {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeSessionStatus(t *testing.T) {
	raw := EncodeResponse(Response{Status: StatusInvalidRequest, Message: "bad chain"})

	_, err := decodeSession(raw, "0021")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != StatusInvalidRequest {
		t.Fatalf("err = %v, want StatusError(invalid_request)", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range [][]byte{nil, {1, 2}, bytes.Repeat([]byte{0xff}, 32)} {
		if _, err := DecodeResponse(in); err == nil {
			t.Errorf("DecodeResponse(%x) succeeded", in)
		}

		if _, err := DecodeRequest(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeRequest(%x) = %v, want ErrMalformed", in, err)
		}
	}
}

func TestDecodeResponseLyingInput(t *testing.T) {
	ok := func() []byte {
		s := testSession(NewRequest(testCredential(), "0021", 0), 4)
		return EncodeResponse(Response{Status: StatusOK, Session: s})
	}

	cases := map[string][]byte{
		"nodes length":       withNodesLength(ok(), 0x7fffffff),
		"nodes length small": withNodesLength(ok(), uint32(len(ok())/4+1)),
		"session offset past end": func() []byte {
			raw := ok()
			tab := types.GetRootAsDispatchResponse(raw, 0).Table()
			field := tab.Pos + flatbuffers.UOffsetT(tab.Offset(responseSessionSlot))
			binary.LittleEndian.PutUint32(raw[field:], 0x7ffffff0)
			return raw
		}(),
		"root offset past end": func() []byte {
			raw := ok()
			binary.LittleEndian.PutUint32(raw, 0x7ffffff0)
			return raw
		}(),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeResponse(raw); err == nil {
				t.Fatal("decoded a lying response")
			}

			if _, err := decodeSession(raw, "0021"); !errors.Is(err, ErrMalformed) && !errors.Is(err, session.ErrMalformed) {
				t.Errorf("err = %v, want a malformed error", err)
			}
		})
	}
}

func FuzzDecodeResponse(f *testing.F) {
	f.Add(EncodeResponse(Response{Status: StatusOK, Session: testSession(NewRequest(testCredential(), "0021", 0), 4)}))
	f.Add(EncodeResponse(Response{Status: StatusNoNodes, Message: "none"}))

	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := DecodeResponse(data)
		if err == nil && r.Session != nil && len(r.Session.Nodes) > session.MaxNodes {
			t.Fatalf("decoded %d nodes", len(r.Session.Nodes))
		}
	})
}
