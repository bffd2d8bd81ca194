package node

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"

	"github.com/mobilecoinofficial/mcnet/src/keys"
)

// governorSet is the set of keys allowed to approve minting for a token,
// with the number of approvals required.
type governorSet struct {
	Signers   string `json:"signers"`
	Threshold int    `json:"threshold"`
}

type tokenConfig struct {
	TokenID    int          `json:"token_id"`
	MinimumFee uint64       `json:"minimum_fee"`
	Governors  *governorSet `json:"governors,omitempty"`
}

type tokensDocument struct {
	Tokens []tokenConfig `json:"tokens"`
}

// writeTokensConfig builds the node's token configuration, one fee-only
// default token plus one governed token per governor keypair, and passes it
// through the governor countersigning step before the engine loads it.
func (n *Node) writeTokensConfig() error {
	mintingKeys := n.conf.MintingKeysDir()

	doc := tokensDocument{
		Tokens: []tokenConfig{
			{TokenID: 0, MinimumFee: n.MinimumFee},
		},
	}

	for i := 1; i <= 2; i++ {
		pub, err := ioutil.ReadFile(filepath.Join(mintingKeys, keys.GovernorPubFile(i)))
		if err != nil {
			return err
		}
		doc.Tokens = append(doc.Tokens, tokenConfig{
			TokenID:    i,
			MinimumFee: 1024,
			Governors: &governorSet{
				Signers:   string(pub),
				Threshold: 1,
			},
		})
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(n.TokensConfigFile(), buf, 0644); err != nil {
		return err
	}

	return n.provider.SignGovernors(
		n.TokensConfigFile(),
		filepath.Join(mintingKeys, keys.TrustRootFile),
	)
}
