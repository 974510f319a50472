package chains

// ChainList contains the list of supported chain IDs
var ChainList = []int{
	1,     // Ethereum
	10,    // Optimism
	137,   // Polygon
	8453,  // Base
	42161, // Arbitrum
	43114, // Avalanche
	130,   // Unichain
}

// chainNames maps chain IDs to their names
var chainNames = map[int]string{
	1:     "ETHEREUM",
	10:    "OPTIMISM",
	137:   "POLYGON",
	8453:  "BASE",
	42161: "ARBITRUM",
	43114: "AVALANCHE",
	130:   "UNICHAIN",
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID int) string {
	name, exists := chainNames[chainID]
	if !exists {
		return ""
	}
	return name
}

// IsSupported reports whether the chain ID is in the supported set
func IsSupported(chainID int) bool {
	_, exists := chainNames[chainID]
	return exists
}
