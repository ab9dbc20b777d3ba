package types

import "fmt"

// Well-known EVM chain ids. The backend keys contract metadata by chain
// id, and the notify payload carries the network name.
var networkNames = map[int64]string{
	1:        "ethereum",
	56:       "bsc",
	137:      "polygon",
	8453:     "base",
	84532:    "base-sepolia",
	80002:    "polygon-amoy",
	11155111: "sepolia",
}

// NetworkName returns the canonical name for a chain id, or a synthetic
// "chain-<id>" label for chains outside the table.
func NetworkName(chainID int64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", chainID)
}
