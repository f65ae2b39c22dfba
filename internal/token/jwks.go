package token

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/leeluca/seon-sub000/internal/keys"
)

// JWKS is the JSON Web Key Set exposed to services that verify our RSA-signed
// tokens on their own.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a single JSON Web Key. Only the RSA public key ever appears here;
// symmetric keys are never exposed.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKS projects the access-token public key into a key set document.
func (s *Service) JWKS() JWKS {
	def, err := s.registry.Lookup(keys.TypeAccess)
	if err != nil {
		return JWKS{Keys: []JWK{}}
	}
	pub, ok := def.VerifyKey.(*rsa.PublicKey)
	if !ok {
		return JWKS{Keys: []JWK{}}
	}
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: def.KeyID,
		Alg: def.Method.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}
