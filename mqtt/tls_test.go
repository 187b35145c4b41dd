// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

func encryptPEMBlock(
	t *testing.T,
	password []byte,
	plaintext []byte,
) *pem.Block {
	t.Helper()

	salt := make([]byte, pemSaltSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	nonce := make([]byte, pemNonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	key := pbkdf2.Key(password, salt, pbkdf2Rounds, aesKeySize, sha3.New256)
	c, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(c)
	require.NoError(t, err)

	data := append(salt, nonce...)
	data = append(data, gcm.Seal(nil, nonce, plaintext, nil)...)
	return &pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: data}
}

func TestDecryptPEMBlock(t *testing.T) {
	password := []byte("sensor-fleet")
	plaintext := []byte("private key material")
	block := encryptPEMBlock(t, password, plaintext)

	t.Run("ValidDecryption", func(t *testing.T) {
		decrypted, err := decryptPEMBlock(block, password)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	})

	t.Run("NilPEMBlock", func(t *testing.T) {
		_, err := decryptPEMBlock(nil, password)
		require.EqualError(t, err, "PEM block is nil")
	})

	t.Run("InvalidPassword", func(t *testing.T) {
		_, err := decryptPEMBlock(block, []byte("wrong"))
		require.Error(t, err)
	})

	t.Run("TooShort", func(t *testing.T) {
		short := &pem.Block{Type: block.Type, Bytes: block.Bytes[:19]}
		_, err := decryptPEMBlock(short, password)
		require.EqualError(t, err, "encrypted PEM block is too short")
	})
}

func TestNewTLSConfig(t *testing.T) {
	t.Run("VerifiedByDefault", func(t *testing.T) {
		config, err := NewTLSConfig()
		require.NoError(t, err)
		require.False(t, config.InsecureSkipVerify)
		require.Nil(t, config.RootCAs)
	})

	t.Run("Insecure", func(t *testing.T) {
		config, err := NewTLSConfig(WithInsecureSkipVerify(true))
		require.NoError(t, err)
		require.True(t, config.InsecureSkipVerify)
	})

	t.Run("MissingCA", func(t *testing.T) {
		_, err := NewTLSConfig(WithCA(filepath.Join(t.TempDir(), "ca.pem")))
		require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
	})

	t.Run("EmptyCA", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(file, []byte("not a cert"), 0o600))
		_, err := NewTLSConfig(WithCA(file))
		require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
	})

	t.Run("MissingCertificate", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewTLSConfig(WithX509(
			filepath.Join(dir, "cert.pem"),
			filepath.Join(dir, "key.pem"),
		))
		require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
	})
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()

	user, ok, err := ConstantUsername("")(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, user)

	pass, ok, err := ConstantPassword([]byte("secret"))(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("secret"), pass)

	file := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(file, []byte("rotated\n"), 0o600))
	pass, ok, err = FilePassword(file)(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("rotated"), pass)

	_, _, err = FilePassword(file + ".missing")(ctx)
	require.Error(t, err)
}
