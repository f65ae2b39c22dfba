package keys

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/leeluca/seon-sub000/internal/config"
)

// ErrKeyInitialization marks malformed or missing key material. It is fatal:
// the process must not serve requests partially keyed.
var ErrKeyInitialization = errors.New("key initialization failed")

// Material holds the decoded signing keys for every token type: an RSA
// keypair for the asymmetric types and two derived HMAC secrets. Immutable
// after Load.
type Material struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey

	// KeyID is the RFC 7638 thumbprint of the public key, used as the JWT
	// header kid and in the JWKS document.
	KeyID string

	RefreshKey  []byte
	DBAccessKey []byte
}

// Load decodes the configured key material. Config values are PEM wrapped in
// base64; deployment tooling sometimes double-encodes them as JSON strings,
// both shapes are accepted.
func Load(cfg *config.Config) (*Material, error) {
	privPEM, err := decodeConfigValue(cfg.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrKeyInitialization, err)
	}
	pubPEM, err := decodeConfigValue(cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrKeyInitialization, err)
	}

	priv, err := parseRSAPrivateKey(privPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrKeyInitialization, err)
	}
	pub, err := parseRSAPublicKey(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrKeyInitialization, err)
	}
	if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrKeyInitialization)
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%w: refresh secret is empty", ErrKeyInitialization)
	}
	if cfg.DBAccessSecret == "" {
		return nil, fmt.Errorf("%w: db access secret is empty", ErrKeyInitialization)
	}

	return &Material{
		PrivateKey:  priv,
		PublicKey:   pub,
		KeyID:       Thumbprint(pub),
		RefreshKey:  []byte(cfg.RefreshSecret),
		DBAccessKey: []byte(cfg.DBAccessSecret),
	}, nil
}

// decodeConfigValue unwraps an optional JSON string layer, then base64,
// yielding PEM bytes.
func decodeConfigValue(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, errors.New("value is empty")
	}
	if strings.HasPrefix(v, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(v), &unquoted); err != nil {
			return nil, fmt.Errorf("unwrap json string: %w", err)
		}
		v = unquoted
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return raw, nil
}

func parseRSAPrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an RSA private key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func parseRSAPublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA public key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// Thumbprint computes the RFC 7638 JWK thumbprint of an RSA public key:
// SHA-256 over the canonical {"e","kty","n"} JSON, base64url without padding.
func Thumbprint(pub *rsa.PublicKey) string {
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	canonical := fmt.Sprintf(`{"e":%q,"kty":"RSA","n":%q}`, e, n)
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Provider memoizes a single Load so concurrent first callers share one key
// import instead of racing through their own.
type Provider struct {
	once sync.Once
	load func() (*Material, error)
	km   *Material
	err  error
}

func NewProvider(load func() (*Material, error)) *Provider {
	return &Provider{load: load}
}

func (p *Provider) Get() (*Material, error) {
	p.once.Do(func() {
		p.km, p.err = p.load()
	})
	return p.km, p.err
}
