package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// V1ABI is the external interface of TestTokenV1 as seen through its proxy.
const V1ABI = `[
{"inputs":[],"name":"initialize","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"_admin","type":"address"}],"name":"addAdmin","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"_admin","type":"address"}],"name":"disableAdmin","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"admins","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"string","name":"uri","type":"string"}],"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"burn","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"from","type":"address"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"transferFrom","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// V2ABI extends V1ABI with the function introduced by the upgrade.
var V2ABI = strings.TrimSuffix(V1ABI, "\n]") + `,
{"inputs":[],"name":"sayHi2","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"pure","type":"function"}
]`

const (
	methodInitialize   = "initialize"
	methodAddAdmin     = "addAdmin"
	methodDisableAdmin = "disableAdmin"
	methodAdmins       = "admins"
	methodMint         = "mint"
	methodBurn         = "burn"
	methodTransferFrom = "transferFrom"
	methodOwner        = "owner"
	methodTokenURI     = "tokenURI"
	methodOwnerOf      = "ownerOf"
	methodSayHi2       = "sayHi2"
)

func parseABI(raw string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	return parsed, nil
}
