package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ipvm-wg/homestar/network"
)

var (
	keygenOutPath string
	keygenSeedHex string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate (or derive) a peer identity and print its DID",
	Run:   keygenCmdRun,
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOutPath, "out", "o", "identity.pem", "path to write the PEM identity key (libp2p protobuf key encoding)")
	keygenCmd.Flags().StringVar(&keygenSeedHex, "seed", "", "hex-encoded 32-byte seed for a deterministic identity; random if empty")
}

func keygenCmdRun(cmd *cobra.Command, args []string) {
	var identity network.Identity
	var err error

	if keygenSeedHex != "" {
		seed, decodeErr := hex.DecodeString(keygenSeedHex)
		if decodeErr != nil {
			log.Fatal().Err(decodeErr).Msg("invalid --seed hex")
		}
		identity, err = network.IdentityFromSeed(seed)
	} else {
		identity, err = network.GenerateIdentity()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("generate identity")
	}

	if err := network.SaveIdentity(keygenOutPath, identity.Private); err != nil {
		log.Fatal().Err(err).Msg("save identity")
	}

	did, err := identity.IssuerDID()
	if err != nil {
		log.Fatal().Err(err).Msg("derive DID")
	}

	fmt.Printf("peer id:  %s\n", identity.PeerID)
	fmt.Printf("issuer:   %s\n", did)
	fmt.Printf("saved to: %s\n", keygenOutPath)
}
