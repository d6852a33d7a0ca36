package ledger

// MarketplaceABI is the subset of the marketplace contract used to move an
// NFT against a BRTX payment.
const MarketplaceABI = `[
	{
		"inputs": [
			{"name": "nftContract", "type": "address"},
			{"name": "tokenId", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "NameTransfer",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ERC20ABI is the subset of ERC-20 used for balance display.
const ERC20ABI = `[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
