package config

import (
	"fmt"
	"os"
	"strings"
)

// walletKeyEnvVar builds the environment variable name holding a wallet's
// private key, e.g. SWAPFLOW_WALLET_MAIN_KEY for a wallet named "main".
func walletKeyEnvVar(name string) string {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	return "SWAPFLOW_WALLET_" + clean + "_KEY"
}

// resolveWalletKeys fills each wallet's private key from the environment.
// Keys never live in the yaml file. A single-wallet setup may use the plain
// PRIVATE_KEY variable instead of the per-wallet form. Missing keys are an
// error in production-like environments; development tolerates them so a
// config can be linted without secrets present.
func resolveWalletKeys(cfg *Config) error {
	strict := IsProductionLike(AppEnvironment())

	for i := range cfg.Wallets {
		w := &cfg.Wallets[i]
		key := strings.TrimSpace(os.Getenv(walletKeyEnvVar(w.Name)))
		if key == "" && len(cfg.Wallets) == 1 {
			key = strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
		}
		if key == "" && strict {
			return fmt.Errorf("wallet %q: %s is required", w.Name, walletKeyEnvVar(w.Name))
		}
		w.PrivateKey = key
	}
	return nil
}

// WalletKeys returns the name -> private key map for wallets that resolved
// a key, in the shape the connector consumes.
func (c *Config) WalletKeys() map[string]string {
	keys := make(map[string]string, len(c.Wallets))
	for _, w := range c.Wallets {
		if w.PrivateKey != "" {
			keys[w.Name] = w.PrivateKey
		}
	}
	return keys
}
