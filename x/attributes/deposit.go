package attributes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-multierror"

	"github.com/compose-network/derivation/x/transaction"
)

// Well-known addresses of the L1 attributes transaction.
var (
	// L1InfoDepositerAddress is the sender of every L1 attributes deposit.
	L1InfoDepositerAddress = common.HexToAddress("0xDeaDDEaDDeAdDeAdDEAdDEaddeAddEAdDEAd0001")

	// L1BlockAddress is the predeploy the attributes call-data is sent to.
	L1BlockAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")
)

const (
	// RegolithSystemTxGas is the gas limit of the attributes deposit from the
	// Regolith upgrade on.
	RegolithSystemTxGas = 1_000_000

	// PreRegolithSystemTxGas is the original attributes deposit gas limit.
	PreRegolithSystemTxGas = 150_000_000
)

// Deposit source-hash domains. The source hash commits to the L1 origin of a
// deposit under a domain separator so user deposits and attributes deposits
// can never collide.
const (
	UserDepositSourceDomain   = 0
	L1InfoDepositSourceDomain = 1
)

// DepositEventABI is the signature of the L1 deposit contract event.
const DepositEventABI = "TransactionDeposited(address,address,uint256,bytes)"

var (
	// DepositEventABIHash is topic[0] of every deposit event log.
	DepositEventABIHash = crypto.Keccak256Hash([]byte(DepositEventABI))

	// DepositEventVersion0 is the only recognized event version.
	DepositEventVersion0 = common.Hash{}
)

func sourceHash(domain uint64, inner common.Hash) common.Hash {
	var domainWord [32]byte
	binary.BigEndian.PutUint64(domainWord[24:], domain)
	return crypto.Keccak256Hash(domainWord[:], inner[:])
}

// UserDepositSourceHash identifies a user deposit by its L1 block hash and
// log index.
func UserDepositSourceHash(l1BlockHash common.Hash, logIndex uint64) common.Hash {
	var idx [32]byte
	binary.BigEndian.PutUint64(idx[24:], logIndex)
	return sourceHash(UserDepositSourceDomain, crypto.Keccak256Hash(l1BlockHash[:], idx[:]))
}

// L1InfoDepositSourceHash identifies the attributes deposit of one L2 block
// by its L1 origin hash and sequence number within the epoch.
func L1InfoDepositSourceHash(l1BlockHash common.Hash, seqNumber uint64) common.Hash {
	var seq [32]byte
	binary.BigEndian.PutUint64(seq[24:], seqNumber)
	return sourceHash(L1InfoDepositSourceDomain, crypto.Keccak256Hash(l1BlockHash[:], seq[:]))
}

// L1InfoDeposit constructs the attributes deposit transaction for one L2
// block: the unsigned system transaction every block must lead with. The
// ecotone flag selects the call-data layout; regolith selects the gas rules.
func L1InfoDeposit(info *L1BlockInfo, seqNumber uint64, ecotone, regolith bool) (*transaction.DepositTx, error) {
	if info == nil {
		return nil, errors.New("nil L1 block info")
	}
	info.SequenceNumber = seqNumber

	var data []byte
	if ecotone {
		data = EncodeEcotone(info)
	} else {
		data = EncodeBedrock(info)
	}

	to := L1BlockAddress
	dep := &transaction.DepositTx{
		SourceHash: L1InfoDepositSourceHash(info.BlockHash, seqNumber),
		From:       L1InfoDepositerAddress,
		To:         &to,
		Mint:       nil,
		Value:      big.NewInt(0),
		Data:       data,
	}
	if regolith {
		dep.Gas = RegolithSystemTxGas
		dep.IsSystemTransaction = false
	} else {
		dep.Gas = PreRegolithSystemTxGas
		dep.IsSystemTransaction = true
	}
	return dep, nil
}

// UnmarshalDepositLogEvent decodes one TransactionDeposited log into a
// deposit transaction.
func UnmarshalDepositLogEvent(ev *types.Log) (*transaction.DepositTx, error) {
	if len(ev.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 event topics, got %d", len(ev.Topics))
	}
	if ev.Topics[0] != DepositEventABIHash {
		return nil, fmt.Errorf("invalid deposit event selector %s, expected %s", ev.Topics[0], DepositEventABIHash)
	}
	if len(ev.Data) < 64 {
		return nil, fmt.Errorf("deposit event data too short: %d", len(ev.Data))
	}

	from := common.BytesToAddress(ev.Topics[1][12:])
	to := common.BytesToAddress(ev.Topics[2][12:])
	if ev.Topics[3] != DepositEventVersion0 {
		return nil, fmt.Errorf("unrecognized deposit event version %s", ev.Topics[3])
	}

	// ABI tail: offset word, length word, then the opaque deposit data.
	offset := new(big.Int).SetBytes(ev.Data[:32])
	if !offset.IsUint64() || offset.Uint64() != 32 {
		return nil, fmt.Errorf("unexpected opaque data offset %v", offset)
	}
	length := new(big.Int).SetBytes(ev.Data[32:64])
	if !length.IsUint64() || length.Uint64() > uint64(len(ev.Data)-64) {
		return nil, fmt.Errorf("bad opaque data length %v for %d event data bytes", length, len(ev.Data))
	}
	opaque := ev.Data[64 : 64+length.Uint64()]

	dep := &transaction.DepositTx{
		SourceHash:          UserDepositSourceHash(ev.BlockHash, uint64(ev.Index)),
		From:                from,
		IsSystemTransaction: false,
	}
	if err := unmarshalOpaqueDepositData(dep, to, opaque); err != nil {
		return nil, err
	}
	return dep, nil
}

// unmarshalOpaqueDepositData decodes the packed opaque payload:
// mint(32) ++ value(32) ++ gas(8) ++ isCreation(1) ++ data.
func unmarshalOpaqueDepositData(dep *transaction.DepositTx, to common.Address, opaque []byte) error {
	if len(opaque) < 32+32+8+1 {
		return fmt.Errorf("opaque deposit data too short: %d", len(opaque))
	}
	mint := new(big.Int).SetBytes(opaque[:32])
	if mint.Sign() != 0 {
		dep.Mint = mint
	}
	dep.Value = new(big.Int).SetBytes(opaque[32:64])
	dep.Gas = binary.BigEndian.Uint64(opaque[64:72])
	switch opaque[72] {
	case 0:
		addr := to
		dep.To = &addr
	case 1:
		dep.To = nil // contract creation
	default:
		return fmt.Errorf("bad isCreation flag %d", opaque[72])
	}
	dep.Data = append([]byte{}, opaque[73:]...)
	return nil
}

// UserDeposits extracts the deposit transactions from the receipts of one L1
// block, in log order. Malformed deposit logs are reported but do not hide
// the deposits that did decode; the caller decides whether that is fatal.
func UserDeposits(receipts []*types.Receipt, depositContract common.Address) ([]*transaction.DepositTx, error) {
	var out []*transaction.DepositTx
	var result error
	for i, rec := range receipts {
		if rec.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for j, log := range rec.Logs {
			if log.Address != depositContract || len(log.Topics) == 0 || log.Topics[0] != DepositEventABIHash {
				continue
			}
			dep, err := UnmarshalDepositLogEvent(log)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("malformed deposit log in receipt %d, log %d: %w", i, j, err))
				continue
			}
			out = append(out, dep)
		}
	}
	return out, result
}
