package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// checkAddresses reports every entry of list that is not a hex address, and
// duplicates.
func checkAddresses(field string, list []string) []string {
	var errs []string
	seen := make(map[common.Address]bool, len(list))
	for _, a := range list {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("%s: %q is not a hex address", field, a))
			continue
		}
		addr := common.HexToAddress(a)
		if seen[addr] {
			errs = append(errs, fmt.Sprintf("%s: %s is listed twice", field, addr.Hex()))
		}
		seen[addr] = true
	}
	return errs
}
