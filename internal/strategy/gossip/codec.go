package gossip

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"clusterlink"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	heartbeatPrefix = "heartbeat::"
	keySalt         = "clusterlink/gossip/v1"
)

var errNotHeartbeat = errors.New("not a heartbeat")

type heartbeat struct {
	Peer clusterlink.PeerID `json:"peer"`
}

// codec frames heartbeats. With a secret the JSON body is sealed with
// ChaCha20-Poly1305 under a key derived from the secret; the prefix is
// authenticated as additional data.
type codec struct {
	aead cipher.AEAD
}

func newCodec(secret string) (*codec, error) {
	if secret == "" {
		return &codec{}, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(keySalt), nil), key); err != nil {
		return nil, fmt.Errorf("derive gossip key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create gossip cipher: %w", err)
	}
	return &codec{aead: aead}, nil
}

func (c *codec) seal(peer clusterlink.PeerID) ([]byte, error) {
	body, err := json.Marshal(heartbeat{Peer: peer})
	if err != nil {
		return nil, fmt.Errorf("encode heartbeat: %w", err)
	}
	out := []byte(heartbeatPrefix)
	if c.aead == nil {
		return append(out, body...), nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, body, []byte(heartbeatPrefix)), nil
}

func (c *codec) open(pkt []byte) (clusterlink.PeerID, error) {
	body, ok := bytes.CutPrefix(pkt, []byte(heartbeatPrefix))
	if !ok {
		return "", errNotHeartbeat
	}
	if c.aead != nil {
		n := c.aead.NonceSize()
		if len(body) < n {
			return "", errNotHeartbeat
		}
		plain, err := c.aead.Open(nil, body[:n], body[n:], []byte(heartbeatPrefix))
		if err != nil {
			return "", fmt.Errorf("open heartbeat: %w", err)
		}
		body = plain
	}
	var hb heartbeat
	if err := json.Unmarshal(body, &hb); err != nil {
		return "", fmt.Errorf("decode heartbeat: %w", err)
	}
	if hb.Peer == "" {
		return "", errNotHeartbeat
	}
	return hb.Peer, nil
}
