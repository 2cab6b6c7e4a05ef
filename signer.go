package alipayauth

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
)

// Signer signs, verifies, encrypts and decrypts canonical parameter
// strings with the application's private key and Alipay's public key.
// A Signer is safe for concurrent use.
type Signer struct {
	keys *keyring
}

// NewSigner creates a Signer from key options (WithPrivateKey,
// WithPrivateKeyFile, WithAlipayPublicKey, WithAlipayPublicKeyFile,
// WithKeyCacheTTL). At least one key must be supplied; operations that
// need a missing key fail with an ErrKindKey error.
func NewSigner(opts ...Option) (*Signer, error) {
	cfg := newClientConfig(opts...)
	if err := cfg.validateKeySources(); err != nil {
		return nil, err
	}
	if !cfg.privateKey.isSet() && !cfg.publicKey.isSet() {
		return nil, newAuthError(ErrKindConfiguration, "", "at least one key must be configured", nil)
	}
	kr, err := newKeyring(cfg.privateKey, cfg.publicKey, cfg.keyCacheTTL)
	if err != nil {
		return nil, asConfigError(err)
	}
	return &Signer{keys: kr}, nil
}

// Sign computes the base64 RSA-SHA256 (RSA2) signature of the canonical
// form of params using the local private key.
func (s *Signer) Sign(params map[string]string) (string, error) {
	key, err := s.keys.privateKey()
	if err != nil {
		return "", err
	}
	return signWithRSA2(key, Canonicalize(params))
}

// Verify reports whether signature is a valid RSA2 signature of the
// canonical form of params under the Alipay public key. A mismatch,
// including a signature that is not valid base64, yields false and a nil
// error; only missing or corrupt key material yields an error.
func (s *Signer) Verify(params map[string]string, signature string) (bool, error) {
	key, err := s.keys.publicKey()
	if err != nil {
		return false, err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	h := sha256.Sum256([]byte(Canonicalize(params)))
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, h[:], sig) == nil, nil
}

// Encrypt encrypts the canonical form of params with the Alipay public
// key using RSA-OAEP (SHA-1) and returns it base64-encoded. Input longer
// than one RSA block is split into block-sized chunks whose ciphertexts
// are concatenated.
func (s *Signer) Encrypt(params map[string]string) (string, error) {
	key, err := s.keys.publicKey()
	if err != nil {
		return "", err
	}
	plain := []byte(Canonicalize(params))

	chunk := key.Size() - 2*sha1.Size - 2
	var out bytes.Buffer
	for {
		n := min(chunk, len(plain))
		block, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, key, plain[:n], nil)
		if err != nil {
			return "", newAuthError(ErrKindKey, "", "RSA encrypt failed: "+err.Error(), err)
		}
		out.Write(block)
		plain = plain[n:]
		if len(plain) == 0 {
			break
		}
	}
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// Decrypt reverses Encrypt with the local private key and returns the
// plaintext as UTF-8 text.
func (s *Signer) Decrypt(ciphertext string) (string, error) {
	key, err := s.keys.privateKey()
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", newAuthError(ErrKindCipher, "", "ciphertext is not valid base64", err)
	}
	size := key.Size()
	if len(data) == 0 || len(data)%size != 0 {
		return "", newAuthError(ErrKindCipher, "", "ciphertext length is not a multiple of the key size", nil)
	}

	var out bytes.Buffer
	for off := 0; off < len(data); off += size {
		block, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, key, data[off:off+size], nil)
		if err != nil {
			return "", newAuthError(ErrKindCipher, "", "RSA decrypt failed", err)
		}
		out.Write(block)
	}
	return out.String(), nil
}

// signWithRSA2 signs the content using SHA256WithRSA (RSA2) and returns
// the base64-encoded signature.
func signWithRSA2(privateKey *rsa.PrivateKey, content string) (string, error) {
	h := sha256.Sum256([]byte(content))
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, h[:])
	if err != nil {
		return "", newAuthError(ErrKindKey, "", "RSA2 sign failed: "+err.Error(), err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}
