package secretsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/kazi/core"
)

func TestSealOpen(t *testing.T) {
	conf := &core.Config{SecretKey: "test-key"}
	svc := NewService(conf)

	sealed, err := svc.Seal("hunter2")
	assert.NoError(t, err)
	assert.NotEqual(t, "hunter2", sealed)

	plain, err := svc.Open(sealed)
	assert.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	// nonce makes sealing non-deterministic
	sealed2, err := svc.Seal("hunter2")
	assert.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestOpenRejectsTampering(t *testing.T) {
	svc := NewService(&core.Config{SecretKey: "test-key"})

	_, err := svc.Open("not base64!!")
	assert.Equal(t, ErrDecryptionFailed, err)

	_, err = svc.Open("dG9vc2hvcnQ=") // valid base64, too short
	assert.Equal(t, ErrDecryptionFailed, err)

	// wrong key
	sealed, err := svc.Seal("hunter2")
	assert.NoError(t, err)
	other := NewService(&core.Config{SecretKey: "other-key"})
	_, err = other.Open(sealed)
	assert.Equal(t, ErrDecryptionFailed, err)
}
