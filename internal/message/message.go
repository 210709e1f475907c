// Package message implements the wire codec for protocol payloads.
//
// A payload is PREFIX || type_tag (4 bytes big-endian) || body. The tag
// values and body layouts are frozen; changing any of them is a hard fork.
package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cntr-protocol/cntrd/pkg/helpers"
)

// Type tags. Frozen.
const (
	TagSend       uint32 = 1
	TagIssuance   uint32 = 2
	TagOrder      uint32 = 3
	TagBtcPayment uint32 = 4
)

// Body lengths in bytes. Frozen.
const (
	sendBodyLen       = 16
	issuanceBodyLen   = 17
	orderBodyLen      = 44
	btcPaymentBodyLen = 64
)

// Codec errors.
var (
	ErrNoPrefix = errors.New("payload does not carry the protocol prefix")
	ErrBadBody  = errors.New("message body has wrong length")
)

// UnknownTagError is returned for a recognised prefix with an unrecognised
// type tag. The transaction is kept but marked unsupported.
type UnknownTagError struct {
	Tag uint32
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown message type tag %d", e.Tag)
}

// Message is one of the closed set of protocol message variants.
type Message interface {
	Tag() uint32
	encodeBody() ([]byte, error)
}

// Send moves an amount of an asset from the transaction source to its
// destination.
type Send struct {
	AssetID int64
	Amount  int64
}

func (*Send) Tag() uint32 { return TagSend }

func (m *Send) encodeBody() ([]byte, error) {
	body := make([]byte, sendBodyLen)
	binary.BigEndian.PutUint64(body[0:8], uint64(m.AssetID))
	binary.BigEndian.PutUint64(body[8:16], uint64(m.Amount))
	return body, nil
}

// Issuance creates a new asset or augments the supply of an existing one.
type Issuance struct {
	AssetID   int64
	Amount    int64
	Divisible bool
}

func (*Issuance) Tag() uint32 { return TagIssuance }

func (m *Issuance) encodeBody() ([]byte, error) {
	body := make([]byte, issuanceBodyLen)
	binary.BigEndian.PutUint64(body[0:8], uint64(m.AssetID))
	binary.BigEndian.PutUint64(body[8:16], uint64(m.Amount))
	if m.Divisible {
		body[16] = 1
	}
	return body, nil
}

// Order offers give_amount of give_id in exchange for get_amount of get_id,
// open for expiration blocks.
type Order struct {
	GiveID      int64
	GiveAmount  int64
	GetID       int64
	GetAmount   int64
	Expiration  uint32
	FeeRequired uint32
	FeeProvided uint32
}

func (*Order) Tag() uint32 { return TagOrder }

func (m *Order) encodeBody() ([]byte, error) {
	body := make([]byte, orderBodyLen)
	binary.BigEndian.PutUint64(body[0:8], uint64(m.GiveID))
	binary.BigEndian.PutUint64(body[8:16], uint64(m.GiveAmount))
	binary.BigEndian.PutUint64(body[16:24], uint64(m.GetID))
	binary.BigEndian.PutUint64(body[24:32], uint64(m.GetAmount))
	binary.BigEndian.PutUint32(body[32:36], m.Expiration)
	binary.BigEndian.PutUint32(body[36:40], m.FeeRequired)
	binary.BigEndian.PutUint32(body[40:44], m.FeeProvided)
	return body, nil
}

// BtcPayment settles the BTC leg of a pending deal, referenced by the hashes
// of its two orders (hex strings, 32 raw bytes each on the wire).
type BtcPayment struct {
	Tx0Hash string
	Tx1Hash string
}

func (*BtcPayment) Tag() uint32 { return TagBtcPayment }

func (m *BtcPayment) encodeBody() ([]byte, error) {
	h0, err := helpers.HexToBytes(m.Tx0Hash)
	if err != nil || len(h0) != 32 {
		return nil, fmt.Errorf("bad tx0 hash %q", m.Tx0Hash)
	}
	h1, err := helpers.HexToBytes(m.Tx1Hash)
	if err != nil || len(h1) != 32 {
		return nil, fmt.Errorf("bad tx1 hash %q", m.Tx1Hash)
	}
	return append(h0, h1...), nil
}

// IsProtocol reports whether the payload begins with the protocol prefix.
func IsProtocol(prefix, payload []byte) bool {
	return len(prefix) > 0 && bytes.HasPrefix(payload, prefix)
}

// Decode parses a prefixed payload into a message variant. It returns
// ErrNoPrefix when the payload is not a protocol message at all, an
// UnknownTagError for an unrecognised tag, and ErrBadBody for a recognised
// tag with a malformed body.
func Decode(prefix, payload []byte) (Message, error) {
	if !IsProtocol(prefix, payload) {
		return nil, ErrNoPrefix
	}

	rest := payload[len(prefix):]
	if len(rest) < 4 {
		return nil, fmt.Errorf("%w: missing type tag", ErrBadBody)
	}
	tag := binary.BigEndian.Uint32(rest[:4])
	body := rest[4:]

	switch tag {
	case TagSend:
		if len(body) != sendBodyLen {
			return nil, fmt.Errorf("%w: send wants %d bytes, got %d", ErrBadBody, sendBodyLen, len(body))
		}
		return &Send{
			AssetID: int64(binary.BigEndian.Uint64(body[0:8])),
			Amount:  int64(binary.BigEndian.Uint64(body[8:16])),
		}, nil

	case TagIssuance:
		if len(body) != issuanceBodyLen {
			return nil, fmt.Errorf("%w: issuance wants %d bytes, got %d", ErrBadBody, issuanceBodyLen, len(body))
		}
		return &Issuance{
			AssetID:   int64(binary.BigEndian.Uint64(body[0:8])),
			Amount:    int64(binary.BigEndian.Uint64(body[8:16])),
			Divisible: body[16] != 0,
		}, nil

	case TagOrder:
		if len(body) != orderBodyLen {
			return nil, fmt.Errorf("%w: order wants %d bytes, got %d", ErrBadBody, orderBodyLen, len(body))
		}
		return &Order{
			GiveID:      int64(binary.BigEndian.Uint64(body[0:8])),
			GiveAmount:  int64(binary.BigEndian.Uint64(body[8:16])),
			GetID:       int64(binary.BigEndian.Uint64(body[16:24])),
			GetAmount:   int64(binary.BigEndian.Uint64(body[24:32])),
			Expiration:  binary.BigEndian.Uint32(body[32:36]),
			FeeRequired: binary.BigEndian.Uint32(body[36:40]),
			FeeProvided: binary.BigEndian.Uint32(body[40:44]),
		}, nil

	case TagBtcPayment:
		if len(body) != btcPaymentBodyLen {
			return nil, fmt.Errorf("%w: btcpayment wants %d bytes, got %d", ErrBadBody, btcPaymentBodyLen, len(body))
		}
		return &BtcPayment{
			Tx0Hash: helpers.BytesToHex(body[0:32]),
			Tx1Hash: helpers.BytesToHex(body[32:64]),
		}, nil

	default:
		return nil, &UnknownTagError{Tag: tag}
	}
}

// Encode serialises a message with the given prefix.
func Encode(prefix []byte, m Message) ([]byte, error) {
	body, err := m.encodeBody()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(prefix)+4+len(body))
	out = append(out, prefix...)
	out = binary.BigEndian.AppendUint32(out, m.Tag())
	out = append(out, body...)
	return out, nil
}
