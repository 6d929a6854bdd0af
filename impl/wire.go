package impl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrPacketSize = errors.New("packet size is invalid")

// encodeFragment writes a gate fragment as field 1 = key text, field 2 = sfixed64 value.
func encodeFragment(key mpc.GateKey, value int64) ([]byte, error) {
	k := key.String()
	if len(k) > mpc.MaxKeyLength {
		return nil, fmt.Errorf("key %s is longer than %d bytes", k, mpc.MaxKeyLength)
	}
	b := make([]byte, 0, len(k)+16)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, k)
	b = protowire.AppendTag(b, fieldValue, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(value))
	return b, nil
}

func decodeFragment(b []byte) (mpc.GateKey, int64, error) {
	var (
		key      mpc.GateKey
		value    int64
		hasKey   bool
		hasValue bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return key, 0, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldKey && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return key, 0, protowire.ParseError(n)
			}
			if len(s) > mpc.MaxKeyLength {
				return key, 0, fmt.Errorf("key is longer than %d bytes", mpc.MaxKeyLength)
			}
			k, err := mpc.ParseGateKey(s)
			if err != nil {
				return key, 0, err
			}
			key, hasKey = k, true
			b = b[n:]
		case num == fieldValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return key, 0, protowire.ParseError(n)
			}
			value, hasValue = int64(v), true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return key, 0, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if !hasKey || !hasValue {
		return key, 0, errors.New("fragment is missing a field")
	}
	return key, value, nil
}

// encodeHello is the first message on a connection: field 1 = session id, field 2 = participant index.
func encodeHello(session uuid.UUID, idx state.PeerIndex) []byte {
	b := make([]byte, 0, 32)
	b = protowire.AppendTag(b, fieldSession, protowire.BytesType)
	b = protowire.AppendBytes(b, session[:])
	b = protowire.AppendTag(b, fieldIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(idx))
	return b
}

func decodeHello(b []byte) (uuid.UUID, state.PeerIndex, error) {
	var (
		session uuid.UUID
		idx     state.PeerIndex
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return session, 0, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldSession && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return session, 0, protowire.ParseError(n)
			}
			s, err := uuid.FromBytes(v)
			if err != nil {
				return session, 0, err
			}
			session = s
			b = b[n:]
		case num == fieldIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return session, 0, protowire.ParseError(n)
			}
			idx = state.PeerIndex(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return session, 0, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if idx == 0 {
		return session, 0, errors.New("hello is missing the participant index")
	}
	return session, idx, nil
}

func receive(r io.Reader) ([]byte, error) {
	var length uint32

	err := binary.Read(r, binary.BigEndian, &length)
	if err != nil {
		return nil, err
	}

	if length == 0 || length > MaxPacketSize {
		return nil, ErrPacketSize
	}

	data := make([]byte, length)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func send(w io.Writer, body []byte) error {
	if len(body) == 0 || len(body) > MaxPacketSize {
		return ErrPacketSize
	}

	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	out = append(out, body...)

	_, err := w.Write(out)
	return err
}
