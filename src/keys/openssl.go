package keys

import (
	"fmt"
	"io/ioutil"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// OpensslProvider generates keys by shelling out to openssl and to the
// external seeded-keygen and mint-client tools. Subprocess failures are
// returned as errors; callers fail fast on them.
type OpensslProvider struct {
	seededKeygenBin string
	mintClientBin   string
	logger          *logrus.Entry
}

// NewOpensslProvider returns a Provider backed by external tools.
// seededKeygenBin and mintClientBin are the paths of the deterministic
// keygen and mint-client binaries.
func NewOpensslProvider(seededKeygenBin, mintClientBin string, logger *logrus.Entry) *OpensslProvider {
	return &OpensslProvider{
		seededKeygenBin: seededKeygenBin,
		mintClientBin:   mintClientBin,
		logger:          logger,
	}
}

// GenerateKey implements Provider.
func (p *OpensslProvider) GenerateKey(path string) error {
	return p.run("openssl", "genpkey", "-algorithm", "ed25519", "-out", path)
}

// WritePublicKey implements Provider.
func (p *OpensslProvider) WritePublicKey(privPath, pubPath string) error {
	return p.run("openssl", "pkey", "-pubout", "-in", privPath, "-out", pubPath)
}

// PublicKeyBase64URL implements Provider.
func (p *OpensslProvider) PublicKeyBase64URL(path string) (string, error) {
	out, err := p.output("openssl", "pkey", "-in", path, "-pubout")
	if err != nil {
		return "", err
	}

	body, err := pemBody(string(out))
	if err != nil {
		return "", err
	}
	return base64URL(body), nil
}

// GenerateSeededKey implements Provider.
func (p *OpensslProvider) GenerateSeededKey(seedHex, path string) error {
	out, err := p.output(p.seededKeygenBin, "--seed", seedHex)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, out, 0600)
}

// SignGovernors implements Provider.
func (p *OpensslProvider) SignGovernors(tokensPath, signingKeyPath string) error {
	return p.run(p.mintClientBin,
		"sign-governors",
		"--tokens", tokensPath,
		"--signing-key", signingKeyPath,
		"--output-json", tokensPath,
	)
}

func (p *OpensslProvider) run(bin string, args ...string) error {
	_, err := p.output(bin, args...)
	return err
}

func (p *OpensslProvider) output(bin string, args ...string) ([]byte, error) {
	p.logger.WithField("cmd", bin).Debug(args)

	cmd := exec.Command(bin, args...)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %v: %s", bin, err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s: %v", bin, err)
	}
	return out, nil
}
