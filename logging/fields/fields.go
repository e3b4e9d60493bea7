package fields

import (
	"math/big"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	FieldAddress      = "address"
	FieldAmount       = "amount_wei"
	FieldBatchSize    = "batch_size"
	FieldCaller       = "caller"
	FieldCapability   = "capability"
	FieldCount        = "count"
	FieldDepositRoot  = "deposit_root"
	FieldEventType    = "event_type"
	FieldMaxNodeCount = "max_node_count"
	FieldNodeID       = "node_id"
	FieldOperator     = "operator"
	FieldPod          = "pod"
	FieldPubKey       = "pubkey"
	FieldRewardsType  = "rewards_type"
	FieldTemplateVer  = "template_version"
)

func Address(addr string) zap.Field {
	return zap.String(FieldAddress, addr)
}

func Account(addr common.Address) zap.Field {
	return zap.Stringer(FieldAddress, addr)
}

func Caller(addr common.Address) zap.Field {
	return zap.Stringer(FieldCaller, addr)
}

func Amount(wei *big.Int) zap.Field {
	return zap.Stringer(FieldAmount, wei)
}

func BatchSize(n int) zap.Field {
	return zap.Int(FieldBatchSize, n)
}

func Count(n int) zap.Field {
	return zap.Int(FieldCount, n)
}

func DepositRoot(root phase0.Root) zap.Field {
	return zap.Stringer(FieldDepositRoot, root)
}

func NodeID(id uint64) zap.Field {
	return zap.Uint64(FieldNodeID, id)
}

func Operator(addr common.Address) zap.Field {
	return zap.Stringer(FieldOperator, addr)
}

func Pod(addr common.Address) zap.Field {
	return zap.Stringer(FieldPod, addr)
}

func PubKey(pk phase0.BLSPubKey) zap.Field {
	return zap.Stringer(FieldPubKey, pk)
}

func Capability(c string) zap.Field {
	return zap.String(FieldCapability, c)
}

func EventType(t string) zap.Field {
	return zap.String(FieldEventType, t)
}

func RewardsType(t string) zap.Field {
	return zap.String(FieldRewardsType, t)
}

func TemplateVersion(v uint64) zap.Field {
	return zap.Uint64(FieldTemplateVer, v)
}

func MaxNodeCount(n uint64) zap.Field {
	return zap.Uint64(FieldMaxNodeCount, n)
}
