package fota

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

// The bootloader verifies images with micro-ecc, which stores every integer
// least significant byte first. Signatures and verifying keys are therefore
// encoded per field in little-endian order.

const coordSize = 32

// Signer appends the 64 byte trailer to an image. Without a key the trailer
// carries the reversed SHA-256 digest, so the image size does not depend on
// whether it has been signed.
type Signer struct {
	Key  *ecdsa.PrivateKey
	Rand io.Reader
}

// NewSigner returns a signer for key; key may be nil for unsigned images.
func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	res := &Signer{Key: key, Rand: rand.Reader}
	if err := res.Check(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Signer) IsSigning() bool { return s != nil && s.Key != nil }

// Check reports key material the trailer format cannot carry.
func (s *Signer) Check() error {
	if !s.IsSigning() {
		return nil
	}
	if s.Key.Curve == nil {
		return &SigningError{Reason: "key has no curve"}
	}
	if name := s.Key.Curve.Params().Name; name != elliptic.P256().Params().Name {
		return &SigningError{Reason: "curve " + name + " is not P-256"}
	}
	return nil
}

// Signature computes the trailer for data.
func (s *Signer) Signature(data []byte) (sig []byte, err error) {
	digest := sha256.Sum256(data)
	if !s.IsSigning() {
		return Pad(reversed(digest[:]), SIGNATURE_SIZE), nil
	}
	if err = s.Check(); err != nil {
		return nil, err
	}
	rnd := s.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	r, ss, err := ecdsa.Sign(rnd, s.Key, digest[:])
	if err != nil {
		return nil, &SigningError{Reason: "signing failed", Err: err}
	}
	return EncodeSignature(r, ss), nil
}

// Sign returns data followed by its signature trailer.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	sig, err := s.Signature(data)
	if err != nil {
		return nil, err
	}
	res := make([]byte, 0, len(data)+len(sig))
	res = append(res, data...)
	return append(res, sig...), nil
}

// leBytes encodes n as a fixed width little-endian integer.
func leBytes(n *big.Int) []byte {
	buf := make([]byte, coordSize)
	n.FillBytes(buf)
	return reversed(buf)
}

func leInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(reversed(b))
}

// EncodeSignature encodes r and s independently little-endian, r first.
func EncodeSignature(r, s *big.Int) []byte {
	return append(leBytes(r), leBytes(s)...)
}

// DecodeSignature is the inverse of EncodeSignature.
func DecodeSignature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != SIGNATURE_SIZE {
		return nil, nil, errors.Errorf("signature must be %d bytes, got %d", SIGNATURE_SIZE, len(sig))
	}
	return leInt(sig[:coordSize]), leInt(sig[coordSize:]), nil
}

// EncodeVerifyingKey re-encodes the big-endian X||Y point as X_le||Y_le for
// embedding into the configuration block.
func EncodeVerifyingKey(pub *ecdsa.PublicKey) (key [64]byte) {
	copy(key[:coordSize], leBytes(pub.X))
	copy(key[coordSize:], leBytes(pub.Y))
	return key
}

// DecodeVerifyingKey is the inverse of EncodeVerifyingKey.
func DecodeVerifyingKey(key [64]byte) *ecdsa.PublicKey {
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     leInt(key[:coordSize]),
		Y:     leInt(key[coordSize:]),
	}
}

// Verify checks a little-endian encoded signature over data.
func Verify(pub *ecdsa.PublicKey, data, sig []byte) bool {
	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.Verify(pub, digest[:], r, s)
}

// IsPseudoSignature reports whether sig is the unsigned trailer of data.
func IsPseudoSignature(data, sig []byte) bool {
	digest := sha256.Sum256(data)
	expected := Pad(reversed(digest[:]), SIGNATURE_SIZE)
	if len(sig) != len(expected) {
		return false
	}
	for i := range sig {
		if sig[i] != expected[i] {
			return false
		}
	}
	return true
}

// LoadSigningKey parses a PEM encoded P-256 private key (SEC 1 or PKCS #8).
func LoadSigningKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, &SigningError{Reason: "no PEM block found"}
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, &SigningError{Reason: "invalid EC private key", Err: err}
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, &SigningError{Reason: "invalid PKCS #8 private key", Err: err}
		}
		ek, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, &SigningError{Reason: "PKCS #8 key is not an ECDSA key"}
		}
		key = ek
	default:
		return nil, &SigningError{Reason: "unsupported PEM block " + block.Type}
	}

	if key.Curve.Params().Name != elliptic.P256().Params().Name {
		return nil, &SigningError{Reason: "curve " + key.Curve.Params().Name + " is not P-256"}
	}
	return key, nil
}

// LoadVerifyingKey parses a PEM encoded P-256 public key, or derives it
// from a private key PEM.
func LoadVerifyingKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != "PUBLIC KEY" {
		key, err := LoadSigningKey(pemBytes)
		if err != nil {
			return nil, err
		}
		return &key.PublicKey, nil
	}
	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key")
	}
	pub, ok := k.(*ecdsa.PublicKey)
	if !ok || pub.Curve.Params().Name != elliptic.P256().Params().Name {
		return nil, errors.New("public key is not a P-256 ECDSA key")
	}
	return pub, nil
}
