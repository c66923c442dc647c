// Package secretsvc seals and opens git credentials with a symmetric key
// derived from the app secret. Sealed blobs are what the credential store
// persists; adapters receive the plaintext only at call time.
package secretsvc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/trezcool/kazi/core"
)

var ErrDecryptionFailed = errors.New("sealed secret could not be opened")

const nonceLen = 24

type Service struct {
	key [32]byte
}

func NewService(conf *core.Config) *Service {
	svc := &Service{key: sha256.Sum256([]byte(conf.SecretKey))}
	return svc
}

func (svc *Service) Seal(plaintext string) (string, error) {
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &svc.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (svc *Service) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceLen {
		return "", ErrDecryptionFailed
	}
	var nonce [nonceLen]byte
	copy(nonce[:], raw[:nonceLen])
	plaintext, ok := secretbox.Open(nil, raw[nonceLen:], &nonce, &svc.key)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
