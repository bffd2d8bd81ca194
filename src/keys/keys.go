// Package keys provisions the Ed25519 key material consumed by the engine
// binaries: per-node consensus message signing keys, governor keypairs, and
// the deterministic minting trust root.
package keys

import (
	"fmt"
	"io/ioutil"
	"strings"
)

// TrustRootSeed is the fixed hex seed of the minting trust root key. It
// matches the key hardcoded in the engine's enclave build, so test networks
// are reproducible. Never use it outside a local test network.
const TrustRootSeed = "abababababababababababababababababababababababababababababababab"

// TrustRootFile is the filename of the minting trust root key inside the
// minting keys directory.
const TrustRootFile = "minting-trust-root.pem"

// GovernorKeyFile returns the filename of the i-th governor private key.
func GovernorKeyFile(i int) string {
	return fmt.Sprintf("governor%d", i)
}

// GovernorPubFile returns the filename of the i-th governor public key.
func GovernorPubFile(i int) string {
	return fmt.Sprintf("governor%d.pub", i)
}

// Provider generates and manipulates key files. The production
// implementation shells out to external tools; an in-memory implementation
// backs unit tests of the orchestrator logic.
type Provider interface {
	// GenerateKey writes a new Ed25519 private key, PEM encoded, to path.
	GenerateKey(path string) error

	// WritePublicKey derives the public key of the private key at privPath
	// and writes it, PEM encoded, to pubPath.
	WritePublicKey(privPath, pubPath string) error

	// PublicKeyBase64URL returns the base64url fingerprint of the public key
	// of the private key at path, as embedded in peer URIs.
	PublicKeyBase64URL(path string) (string, error)

	// GenerateSeededKey writes a deterministic Ed25519 private key derived
	// from the given hex seed, PEM encoded, to path.
	GenerateSeededKey(seedHex, path string) error

	// SignGovernors countersigns the governor sets in the tokens file at
	// tokensPath with the signing key at signingKeyPath, rewriting the file
	// in place.
	SignGovernors(tokensPath, signingKeyPath string) error
}

// PrivateKeyBody reads a PEM private key file and returns its base64 body
// with the armor lines stripped, in the form the engine's --msg-signer-key
// flag expects.
func PrivateKeyBody(path string) (string, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return pemBody(string(buf))
}

// pemBody strips the BEGIN/END lines from a single PEM block and joins the
// remaining base64 lines.
func pemBody(data string) (string, error) {
	var body []string
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		body = append(body, line)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("no PEM body found")
	}
	return strings.Join(body, ""), nil
}

// base64URL converts standard base64 to the url-safe alphabet used in peer
// URIs.
func base64URL(s string) string {
	s = strings.ReplaceAll(s, "+", "-")
	return strings.ReplaceAll(s, "/", "_")
}
