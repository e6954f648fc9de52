package certificate

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// Signer applies the issuing authority's digital signature. It stands in
// for the HSM: the key material is loaded from configuration.
type Signer struct {
	alg       jwa.SignatureAlgorithm
	signKey   any
	verifyKey any
	public    jwk.Key
}

// NewSignerFromPEM loads an RSA, ECDSA or Ed25519 private key.
func NewSignerFromPEM(data []byte) (*Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}

	priv, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	var alg jwa.SignatureAlgorithm
	var pub crypto.PublicKey
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		alg, pub = jwa.RS256(), &k.PublicKey
	case *ecdsa.PrivateKey:
		alg, pub = jwa.ES256(), &k.PublicKey
	case ed25519.PrivateKey:
		alg, pub = jwa.EdDSA(), k.Public()
	default:
		return nil, fmt.Errorf("unsupported signing key type %T", priv)
	}

	public, err := jwk.Import(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to import public signing key: %w", err)
	}
	if err := jwk.AssignKeyID(public); err != nil {
		return nil, fmt.Errorf("failed to assign signing key id: %w", err)
	}
	if err := public.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, fmt.Errorf("failed to set signing key algorithm: %w", err)
	}

	return &Signer{alg: alg, signKey: priv, verifyKey: pub, public: public}, nil
}

// NewHMACSigner is for development; there is no public key to publish.
func NewHMACSigner(secret []byte) (*Signer, error) {
	if len(secret) < 32 {
		return nil, errors.New("hmac signing secret must be at least 32 bytes")
	}
	return &Signer{alg: jwa.HS256(), signKey: secret, verifyKey: secret}, nil
}

func parsePrivateKey(der []byte) (any, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unrecognized private key encoding")
}

// Sign returns the compact JWS of the JSON encoding of claims.
func (s *Signer) Sign(claims any) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal signature claims: %w", err)
	}

	opts := []jws.SignOption{jws.WithKey(s.alg, s.signKey)}
	if s.public != nil {
		headers := jws.NewHeaders()
		if kid, ok := s.public.KeyID(); ok {
			_ = headers.Set(jws.KeyIDKey, kid)
		}
		opts = []jws.SignOption{jws.WithKey(s.alg, s.signKey, jws.WithProtectedHeaders(headers))}
	}

	signed, err := jws.Sign(payload, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	return string(signed), nil
}

// Verify checks a compact JWS and decodes its payload into claims.
func (s *Signer) Verify(signature string, claims any) error {
	payload, err := jws.Verify([]byte(signature), jws.WithKey(s.alg, s.verifyKey))
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	if err := json.Unmarshal(payload, claims); err != nil {
		return fmt.Errorf("failed to decode signature claims: %w", err)
	}
	return nil
}

// PublicKeys is the JWKS verifiers use to check issued certificates. It is
// empty for an HMAC signer.
func (s *Signer) PublicKeys() (jwk.Set, error) {
	set := jwk.NewSet()
	if s.public == nil {
		return set, nil
	}
	if err := set.AddKey(s.public); err != nil {
		return nil, fmt.Errorf("failed to build key set: %w", err)
	}
	return set, nil
}
