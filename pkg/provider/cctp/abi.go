package cctp

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC20ApproveABI covers the allowance grant preceding a burn.
const ERC20ApproveABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// TokenMessengerABI is the burn entrypoint of the circle token messenger.
const TokenMessengerABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint32", "name": "destinationDomain", "type": "uint32"},
			{"internalType": "bytes32", "name": "mintRecipient", "type": "bytes32"},
			{"internalType": "address", "name": "burnToken", "type": "address"},
			{"internalType": "bytes32", "name": "destinationCaller", "type": "bytes32"},
			{"internalType": "uint256", "name": "maxFee", "type": "uint256"},
			{"internalType": "uint32", "name": "minFinalityThreshold", "type": "uint32"}
		],
		"name": "depositForBurn",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// MessageTransmitterABI is the mint entrypoint on the destination chain.
const MessageTransmitterABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "message", "type": "bytes"},
			{"internalType": "bytes", "name": "attestation", "type": "bytes"}
		],
		"name": "receiveMessage",
		"outputs": [{"internalType": "bool", "name": "success", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

func getApproveABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ERC20ApproveABI))
}

func getTokenMessengerABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(TokenMessengerABI))
}

func getMessageTransmitterABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(MessageTransmitterABI))
}
