package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io/ioutil"
)

// InmemProvider is a pure-Go Provider used in tests of the orchestrator
// logic. It writes the same PKCS8/PKIX PEM files as the external tools, so
// code consuming the key files cannot tell the difference.
type InmemProvider struct{}

// NewInmemProvider returns an in-memory key provider.
func NewInmemProvider() *InmemProvider {
	return &InmemProvider{}
}

// GenerateKey implements Provider.
func (p *InmemProvider) GenerateKey(path string) error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	return writePrivatePEM(path, priv)
}

// WritePublicKey implements Provider.
func (p *InmemProvider) WritePublicKey(privPath, pubPath string) error {
	priv, err := readPrivatePEM(privPath)
	if err != nil {
		return err
	}

	der, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return err
	}

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return ioutil.WriteFile(pubPath, pem.EncodeToMemory(block), 0600)
}

// PublicKeyBase64URL implements Provider.
func (p *InmemProvider) PublicKeyBase64URL(path string) (string, error) {
	priv, err := readPrivatePEM(path)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return "", err
	}
	return base64URL(base64.StdEncoding.EncodeToString(der)), nil
}

// GenerateSeededKey implements Provider.
func (p *InmemProvider) GenerateSeededKey(seedHex, path string) error {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return fmt.Errorf("invalid key seed: %v", err)
	}
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return writePrivatePEM(path, ed25519.NewKeyFromSeed(seed))
}

// SignGovernors implements Provider. It signs each governor set with the
// trust root key and records the signature in a governors_signature field,
// mimicking the shape the external mint-client tool produces.
func (p *InmemProvider) SignGovernors(tokensPath, signingKeyPath string) error {
	priv, err := readPrivatePEM(signingKeyPath)
	if err != nil {
		return err
	}

	buf, err := ioutil.ReadFile(tokensPath)
	if err != nil {
		return err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(buf, &doc); err != nil {
		return err
	}

	tokens, ok := doc["tokens"].([]interface{})
	if !ok {
		return fmt.Errorf("tokens file %s has no tokens array", tokensPath)
	}

	for _, t := range tokens {
		token, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		governors, ok := token["governors"]
		if !ok {
			continue
		}

		msg, err := json.Marshal(governors)
		if err != nil {
			return err
		}
		token["governors_signature"] = hex.EncodeToString(ed25519.Sign(priv, msg))
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(tokensPath, out, 0644)
}

func writePrivatePEM(path string, priv ed25519.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return ioutil.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

func readPrivatePEM(path string) (ed25519.PrivateKey, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(buf)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an Ed25519 key", path)
	}
	return priv, nil
}
