package fota_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"testing"

	"github.com/mame82/fotaflash/fota"
	"github.com/pkg/errors"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey()
	signer, err := fota.NewSigner(key)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("firmware payload for signing")

	sig, err := signer.Signature(payload)
	if err != nil {
		t.Fatalf("Signature() error = %v", err)
	}
	if len(sig) != fota.SIGNATURE_SIZE {
		t.Fatalf("signature length = %d", len(sig))
	}

	embedded := fota.EncodeVerifyingKey(&key.PublicKey)
	if !fota.Verify(fota.DecodeVerifyingKey(embedded), payload, sig) {
		t.Errorf("signature does not verify against re-encoded key")
	}
	if fota.Verify(fota.DecodeVerifyingKey(embedded), append(payload, 0), sig) {
		t.Errorf("signature verifies for modified payload")
	}

	// each integer is little-endian on its own
	r, s, err := fota.DecodeSignature(sig)
	if err != nil {
		t.Fatal(err)
	}
	digest := sha256.Sum256(payload)
	if !ecdsa.Verify(&key.PublicKey, digest[:], r, s) {
		t.Errorf("decoded (r, s) does not verify with crypto/ecdsa")
	}
	rBE := make([]byte, 32)
	r.FillBytes(rBE)
	for i := 0; i < 32; i++ {
		if sig[i] != rBE[31-i] {
			t.Fatalf("r not encoded little-endian at byte %d", i)
		}
	}
}

func TestEncodeVerifyingKey(t *testing.T) {
	xBE := make([]byte, 32)
	yBE := make([]byte, 32)
	for i := range xBE {
		xBE[i] = byte(i + 1)
		yBE[i] = byte(0x41 + i)
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBE),
		Y:     new(big.Int).SetBytes(yBE),
	}

	key := fota.EncodeVerifyingKey(pub)
	for i := 0; i < 32; i++ {
		if key[i] != xBE[31-i] {
			t.Fatalf("X byte %d = %#x, want %#x", i, key[i], xBE[31-i])
		}
		if key[32+i] != yBE[31-i] {
			t.Fatalf("Y byte %d = %#x, want %#x", i, key[32+i], yBE[31-i])
		}
	}

	back := fota.DecodeVerifyingKey(key)
	if back.X.Cmp(pub.X) != 0 || back.Y.Cmp(pub.Y) != 0 {
		t.Errorf("DecodeVerifyingKey() does not invert EncodeVerifyingKey()")
	}
}

func TestUnsignedSignature(t *testing.T) {
	signer, _ := fota.NewSigner(nil)
	payload := []byte("unsigned image")

	sig, err := signer.Signature(payload)
	if err != nil {
		t.Fatal(err)
	}
	digest := sha256.Sum256(payload)
	for i := 0; i < 32; i++ {
		if sig[i] != digest[31-i] {
			t.Fatalf("byte %d = %#x, want reversed digest", i, sig[i])
		}
	}
	if !bytes.Equal(sig[32:], bytes.Repeat([]byte{0xFF}, 32)) {
		t.Errorf("pseudo signature not padded with 0xff: % x", sig[32:])
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(signed) != len(payload)+fota.SIGNATURE_SIZE {
		t.Errorf("signed length = %d", len(signed))
	}
}

func TestLoadSigningKey(t *testing.T) {
	key := testKey()

	sec1, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	p384Der, err := x509.MarshalECPrivateKey(p384)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		pem     []byte
		wantErr bool
	}{
		{"sec1", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: sec1}), false},
		{"pkcs8", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), false},
		{"wrong curve", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: p384Der}), true},
		{"garbage", []byte("not a key"), true},
		{"unsupported block", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{1}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fota.LoadSigningKey(tt.pem)
			if tt.wantErr {
				var se *fota.SigningError
				if !errors.As(err, &se) {
					t.Errorf("LoadSigningKey() error = %v, want SigningError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadSigningKey() error = %v", err)
			}
			if got.D.Cmp(key.D) != 0 {
				t.Errorf("loaded key differs")
			}
		})
	}
}

func TestParseUUID(t *testing.T) {
	got, err := fota.ParseUUID("b2152466-d600-11e8-9f8b-f2801f1b9fd1")
	if err != nil {
		t.Fatal(err)
	}
	// DFU service UUID as stored by the firmware
	want := [16]byte{0xd1, 0x9f, 0x1b, 0x1f, 0x80, 0xf2, 0x8b, 0x9f, 0xe8, 0x11, 0x00, 0xd6, 0x66, 0x24, 0x15, 0xb2}
	if got != want {
		t.Errorf("ParseUUID() = % x, want % x", got, want)
	}
	if s := fota.FormatUUID(got); s != "b2152466-d600-11e8-9f8b-f2801f1b9fd1" {
		t.Errorf("FormatUUID() = %q", s)
	}

	if _, err := fota.ParseUUID("not-a-uuid"); err == nil {
		t.Errorf("ParseUUID() accepted invalid input")
	}
	if _, err := fota.ParseUUID("00112233445566778899aabbccddeeff00"); err == nil {
		t.Errorf("ParseUUID() accepted 17 bytes")
	}
}
