// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	e "errors"
	"os"

	"github.com/envira/ieq-pipeline/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

type (
	// TLSOption adjusts the TLS configuration built by NewTLSConfig.
	TLSOption func(*tlsOptions)

	tlsOptions struct {
		caFile   string
		certFile string
		keyFile  string
		passFile string
		insecure bool
	}
)

const (
	pemSaltSize  = 8
	pemNonceSize = 12
	pbkdf2Rounds = 10000
	aesKeySize   = 32
)

// WithCA trusts the PEM-encoded certificate authorities in the file instead of
// the system pool.
func WithCA(file string) TLSOption {
	return func(o *tlsOptions) { o.caFile = file }
}

// WithX509 presents a client certificate.
func WithX509(certFile, keyFile string) TLSOption {
	return func(o *tlsOptions) {
		o.certFile = certFile
		o.keyFile = keyFile
		o.passFile = ""
	}
}

// WithEncryptedX509 presents a client certificate whose private key is
// encrypted with the password stored in passFile.
func WithEncryptedX509(certFile, keyFile, passFile string) TLSOption {
	return func(o *tlsOptions) {
		o.certFile = certFile
		o.keyFile = keyFile
		o.passFile = passFile
	}
}

// WithInsecureSkipVerify disables verification of the broker certificate.
func WithInsecureSkipVerify(insecure bool) TLSOption {
	return func(o *tlsOptions) { o.insecure = insecure }
}

// NewTLSConfig builds a client TLS configuration. Verification is on unless
// explicitly disabled.
func NewTLSConfig(opts ...TLSOption) (*tls.Config, error) {
	var o tlsOptions
	for _, opt := range opts {
		opt(&o)
	}

	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// #nosec G402
		InsecureSkipVerify: o.insecure,
	}

	if o.caFile != "" {
		pool, err := loadCACertPool(o.caFile)
		if err != nil {
			return nil, &errors.Error{
				Kind:          errors.ConfigurationInvalid,
				Message:       "cannot load CA certificates",
				NestedError:   err,
				PropertyName:  "ca_file",
				PropertyValue: o.caFile,
			}
		}
		config.RootCAs = pool
	}

	if o.certFile != "" || o.keyFile != "" {
		var cert tls.Certificate
		var err error
		if o.passFile != "" {
			cert, err = loadX509KeyPairWithPassword(
				o.certFile,
				o.keyFile,
				o.passFile,
			)
		} else {
			cert, err = tls.LoadX509KeyPair(o.certFile, o.keyFile)
		}
		if err != nil {
			return nil, &errors.Error{
				Kind:          errors.ConfigurationInvalid,
				Message:       "cannot load client certificate",
				NestedError:   err,
				PropertyName:  "cert_file",
				PropertyValue: o.certFile,
			}
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

func loadCACertPool(file string) (*x509.CertPool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, e.New("no certificates found in " + file)
	}
	return pool, nil
}

// The key block is salt || nonce || AES-GCM ciphertext, keyed with
// PBKDF2-SHA3-256 over the password.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, e.New("PEM block is nil")
	}
	if len(block.Bytes) < pemSaltSize+pemNonceSize {
		return nil, e.New("encrypted PEM block is too short")
	}

	salt, rest := block.Bytes[:pemSaltSize], block.Bytes[pemSaltSize:]
	key := pbkdf2.Key(password, salt, pbkdf2Rounds, aesKeySize, sha3.New256)

	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := rest[:pemNonceSize], rest[pemNonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func loadX509KeyPairWithPassword(
	certFile,
	keyFile,
	passFile string,
) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	password, err := os.ReadFile(passFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, e.New("no PEM block found in " + keyFile)
	}

	// x509.DecryptPEMBlock is deprecated; see golang/go#8860.
	der, err := decryptPEMBlock(block, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.X509KeyPair(certPEM, pem.EncodeToMemory(&pem.Block{
		Type:  block.Type,
		Bytes: der,
	}))
}
