package auth

import (
	"bufio"
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"net"
	"os"
	"strings"
	"time"

	"github.com/mevdschee/tqingest/ilp"
)

// DefaultTimeout bounds the TCP challenge-response exchange.
const DefaultTimeout = 15 * time.Second

// maxChallengeLen guards against a peer that never sends a newline.
const maxChallengeLen = 4096

// Signer authenticates an ILP/TCP connection with an ECDSA P-256 key.
//
// The exchange is: the client sends the key id and a newline, the server
// answers with a random challenge terminated by a newline, and the client
// replies with the base64 encoded SHA-256/ECDSA signature of the challenge,
// again newline terminated. Rows may only follow after that.
type Signer struct {
	keyID string
	key   *ecdsa.PrivateKey
}

// NewSigner builds a Signer from the key id and the base64url encoded
// private scalar d and public coordinates x and y.
func NewSigner(keyID, d, x, y string) (*Signer, error) {
	if keyID == "" {
		return nil, ilp.Errorf(ilp.ErrConfig, "Missing key id (username) for TCP authentication.")
	}
	dBytes, err := decodeKeyPart("token", d)
	if err != nil {
		return nil, err
	}
	xBytes, err := decodeKeyPart("token_x", x)
	if err != nil {
		return nil, err
	}
	yBytes, err := decodeKeyPart("token_y", y)
	if err != nil {
		return nil, err
	}

	priv, err := ecdh.P256().NewPrivateKey(leftPad(dBytes, 32))
	if err != nil {
		return nil, ilp.Wrap(ilp.ErrConfig, err, "Invalid private key (token)")
	}
	// Uncompressed point: 0x04 || X || Y.
	pub := priv.PublicKey().Bytes()
	if !bytes.Equal(pub[1:33], leftPad(xBytes, 32)) || !bytes.Equal(pub[33:], leftPad(yBytes, 32)) {
		return nil, ilp.Errorf(ilp.ErrConfig, "Public key (token_x, token_y) does not match the private key (token).")
	}

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:]),
		},
		D: new(big.Int).SetBytes(dBytes),
	}
	return &Signer{keyID: keyID, key: key}, nil
}

// KeyID is the identifier sent to the server.
func (s *Signer) KeyID() string { return s.keyID }

// PublicKey is the verification key matching the signatures.
func (s *Signer) PublicKey() *ecdsa.PublicKey { return &s.key.PublicKey }

// Sign returns the ASN.1 DER signature of SHA-256(challenge).
func (s *Signer) Sign(challenge []byte) ([]byte, error) {
	digest := sha256.Sum256(challenge)
	return ecdsa.SignASN1(rand.Reader, s.key, digest[:])
}

// Handshake runs the challenge-response exchange on conn. The whole exchange
// must complete within timeout; the connection deadline is cleared on return.
func (s *Signer) Handshake(conn net.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return ilp.Wrap(ilp.ErrConnect, err, "Could not set authentication deadline")
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write([]byte(s.keyID + "\n")); err != nil {
		return handshakeErr(err, "Failed to send key id")
	}

	challenge, err := readChallenge(bufio.NewReader(conn))
	if err != nil {
		return handshakeErr(err, "Failed to read authentication challenge")
	}

	sig, err := s.Sign(challenge)
	if err != nil {
		return ilp.Wrap(ilp.ErrAuthFailure, err, "Failed to sign authentication challenge")
	}
	reply := base64.StdEncoding.EncodeToString(sig) + "\n"
	if _, err := conn.Write([]byte(reply)); err != nil {
		return handshakeErr(err, "Failed to send authentication signature")
	}
	return nil
}

// readChallenge reads up to the terminating newline. The server sends
// nothing else before the signature is returned, so buffering is safe.
func readChallenge(r *bufio.Reader) ([]byte, error) {
	var challenge []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if c == '\n' {
			return challenge, nil
		}
		if len(challenge) >= maxChallengeLen {
			return nil, errors.New("challenge too long")
		}
		challenge = append(challenge, c)
	}
}

func handshakeErr(err error, msg string) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ilp.Wrap(ilp.ErrAuthFailure, err, "%s: authentication timed out", msg)
	}
	return ilp.Wrap(ilp.ErrAuthFailure, err, "%s", msg)
}

// decodeKeyPart accepts base64url (the usual JWK form) with or without
// padding, falling back to standard base64.
func decodeKeyPart(name, s string) ([]byte, error) {
	if s == "" {
		return nil, ilp.Errorf(ilp.ErrConfig, "Missing %q for TCP authentication.", name)
	}
	trimmed := strings.TrimRight(s, "=")
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(trimmed); err == nil {
			if len(b) > 32 {
				break
			}
			return b, nil
		}
	}
	return nil, ilp.Errorf(ilp.ErrConfig, "Invalid %q: expected a base64 encoded P-256 key component.", name)
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
