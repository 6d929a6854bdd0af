package mpc

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
)

// Stream is a ChaCha20 keystream usable as a concurrent random source.
type Stream struct {
	mu sync.Mutex
	c  *chacha20.Cipher
}

// NewStream seeds a deterministic stream. Nil draws a fresh seed from crypto/rand.
func NewStream(seed *[32]byte) (*Stream, error) {
	var key [chacha20.KeySize]byte
	if seed != nil {
		key = *seed
	} else if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("failed to seed stream: %w", err)
	}
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		return nil, err
	}
	return &Stream{c: c}, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	clear(p)
	s.mu.Lock()
	s.c.XORKeyStream(p, p)
	s.mu.Unlock()
	return len(p), nil
}

var _ io.Reader = (*Stream)(nil)
