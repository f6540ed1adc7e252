package common

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	ChainMainnet = chaincfg.MainNetParams.Name
	ChainTestnet = chaincfg.TestNet3Params.Name
	ChainSignet  = chaincfg.SigNetParams.Name
	ChainRegtest = chaincfg.RegressionNetParams.Name
)

// ChainParams maps a chain name from the config file to its parameters.
func ChainParams(chain string) (*chaincfg.Params, error) {
	switch chain {
	case ChainMainnet, "":
		return &chaincfg.MainNetParams, nil
	case ChainTestnet:
		return &chaincfg.TestNet3Params, nil
	case ChainSignet:
		return &chaincfg.SigNetParams, nil
	case ChainRegtest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown chain %s", chain)
}

// AddressTypes are the script classes whose outputs pay an address that can
// be tracked across blocks. Bare multisig, OP_RETURN and non-standard outputs
// are only tracked as UTXOs.
var AddressTypes = []txscript.ScriptClass{
	txscript.PubKeyTy,
	txscript.PubKeyHashTy,
	txscript.ScriptHashTy,
	txscript.WitnessV0PubKeyHashTy,
	txscript.WitnessV0ScriptHashTy,
	txscript.WitnessV1TaprootTy,
	txscript.WitnessUnknownTy,
}

// OutputTypes lists every script class an output can carry.
var OutputTypes = []txscript.ScriptClass{
	txscript.NonStandardTy,
	txscript.PubKeyTy,
	txscript.PubKeyHashTy,
	txscript.WitnessV0PubKeyHashTy,
	txscript.ScriptHashTy,
	txscript.WitnessV0ScriptHashTy,
	txscript.MultiSigTy,
	txscript.NullDataTy,
	txscript.WitnessV1TaprootTy,
	txscript.WitnessUnknownTy,
}

func IsAddressType(class txscript.ScriptClass) bool {
	for _, t := range AddressTypes {
		if t == class {
			return true
		}
	}
	return false
}

// IsUnspendable reports outputs that never enter the UTXO set.
func IsUnspendable(class txscript.ScriptClass) bool {
	return class == txscript.NullDataTy
}
