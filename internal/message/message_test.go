package message

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var prefix = []byte("CNTR")

func TestRoundTrip(t *testing.T) {
	msgs := []Message{
		&Send{AssetID: 100, Amount: 1000},
		&Send{AssetID: 1, Amount: 1},
		&Issuance{AssetID: 100, Amount: 1000, Divisible: true},
		&Issuance{AssetID: 7, Amount: 42, Divisible: false},
		&Order{GiveID: 200, GiveAmount: 100, GetID: 201, GetAmount: 100, Expiration: 10, FeeRequired: 1, FeeProvided: 2},
		&Order{GiveID: 0, GiveAmount: 10000000, GetID: 201, GetAmount: 100, Expiration: 5000},
		&BtcPayment{
			Tx0Hash: strings.Repeat("ab", 32),
			Tx1Hash: strings.Repeat("cd", 32),
		},
	}

	for _, m := range msgs {
		payload, err := Encode(prefix, m)
		if err != nil {
			t.Fatalf("Encode(%#v) error = %v", m, err)
		}

		got, err := Decode(prefix, payload)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}

		switch want := m.(type) {
		case *Send:
			if *got.(*Send) != *want {
				t.Errorf("Send round trip = %#v, want %#v", got, want)
			}
		case *Issuance:
			if *got.(*Issuance) != *want {
				t.Errorf("Issuance round trip = %#v, want %#v", got, want)
			}
		case *Order:
			if *got.(*Order) != *want {
				t.Errorf("Order round trip = %#v, want %#v", got, want)
			}
		case *BtcPayment:
			if *got.(*BtcPayment) != *want {
				t.Errorf("BtcPayment round trip = %#v, want %#v", got, want)
			}
		}
	}
}

func TestEncodeIssuanceWire(t *testing.T) {
	payload, err := Encode(prefix, &Issuance{AssetID: 100, Amount: 1000, Divisible: true})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := []byte{
		0x43, 0x4e, 0x54, 0x52, // CNTR
		0x00, 0x00, 0x00, 0x02, // issuance tag
		0, 0, 0, 0, 0, 0, 0, 100, // asset_id
		0, 0, 0, 0, 0, 0, 0x03, 0xe8, // amount = 1000
		0x01, // divisible
	}
	if !bytes.Equal(payload, want) {
		t.Errorf("wire bytes = %x, want %x", payload, want)
	}
}

func TestDecodeNoPrefix(t *testing.T) {
	if _, err := Decode(prefix, []byte("XXXX\x00\x00\x00\x01")); !errors.Is(err, ErrNoPrefix) {
		t.Errorf("Decode without prefix error = %v, want ErrNoPrefix", err)
	}
	if _, err := Decode(prefix, nil); !errors.Is(err, ErrNoPrefix) {
		t.Errorf("Decode(nil) error = %v, want ErrNoPrefix", err)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	payload := append([]byte{}, prefix...)
	payload = append(payload, 0x00, 0x00, 0x00, 0x63) // tag 99
	payload = append(payload, make([]byte, 16)...)

	_, err := Decode(prefix, payload)
	var unknown *UnknownTagError
	if !errors.As(err, &unknown) {
		t.Fatalf("Decode unknown tag error = %v, want UnknownTagError", err)
	}
	if unknown.Tag != 99 {
		t.Errorf("UnknownTagError.Tag = %d, want 99", unknown.Tag)
	}
}

func TestDecodeBadBody(t *testing.T) {
	tests := []struct {
		name string
		tail []byte
	}{
		{"missing tag", []byte{0x00, 0x00}},
		{"short send", append([]byte{0x00, 0x00, 0x00, 0x01}, make([]byte, 8)...)},
		{"long send", append([]byte{0x00, 0x00, 0x00, 0x01}, make([]byte, 24)...)},
		{"short issuance", append([]byte{0x00, 0x00, 0x00, 0x02}, make([]byte, 16)...)},
		{"short order", append([]byte{0x00, 0x00, 0x00, 0x03}, make([]byte, 32)...)},
		{"short btcpayment", append([]byte{0x00, 0x00, 0x00, 0x04}, make([]byte, 32)...)},
	}

	for _, tt := range tests {
		payload := append(append([]byte{}, prefix...), tt.tail...)
		if _, err := Decode(prefix, payload); !errors.Is(err, ErrBadBody) {
			t.Errorf("%s: Decode() error = %v, want ErrBadBody", tt.name, err)
		}
	}
}

func TestIsProtocol(t *testing.T) {
	if !IsProtocol(prefix, []byte("CNTRxxxx")) {
		t.Error("IsProtocol should accept prefixed payload")
	}
	if IsProtocol(prefix, []byte("CNT")) {
		t.Error("IsProtocol should reject truncated prefix")
	}
	if IsProtocol(prefix, nil) {
		t.Error("IsProtocol should reject nil payload")
	}
}

func TestEncodeBadBtcPayment(t *testing.T) {
	if _, err := Encode(prefix, &BtcPayment{Tx0Hash: "zz", Tx1Hash: strings.Repeat("ab", 32)}); err == nil {
		t.Error("Encode with malformed hash should fail")
	}
	if _, err := Encode(prefix, &BtcPayment{Tx0Hash: "abcd", Tx1Hash: strings.Repeat("ab", 32)}); err == nil {
		t.Error("Encode with short hash should fail")
	}
}
