package handlers

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"

	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
)

type nodeJSON struct {
	Index              uint64          `json:"index"`
	Address            common.Address  `json:"address"`
	Pod                *common.Address `json:"pod,omitempty"`
	AllocatedETH       *big.Int        `json:"allocated_eth"`
	Balance            *big.Int        `json:"balance"`
	InitializedVersion uint64          `json:"initialized_version"`
	DelegatedTo        *common.Address `json:"delegated_to,omitempty"`
}

func nodeFromRecord(record *registrystorage.NodeRecord) *nodeJSON {
	return &nodeJSON{
		Index:              record.Index,
		Address:            record.Address,
		Pod:                record.PodAddress,
		AllocatedETH:       record.AllocatedETH,
		Balance:            record.Balance,
		InitializedVersion: record.InitializedVersion,
		DelegatedTo:        record.DelegatedTo,
	}
}

type validatorJSON struct {
	Index     uint64           `json:"index"`
	PublicKey phase0.BLSPubKey `json:"public_key"`
	NodeID    uint64           `json:"node_id"`
}

func validatorFromRecord(record *registrystorage.ValidatorRecord) *validatorJSON {
	return &validatorJSON{
		Index:     record.Index,
		PublicKey: record.PublicKey,
		NodeID:    record.NodeID,
	}
}

type eventJSON struct {
	Seq  uint64          `json:"seq"`
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

func eventFromRecord(record *registrystorage.Event) *eventJSON {
	return &eventJSON{
		Seq:  record.Seq,
		Type: record.Type,
		Time: record.Time,
		Data: record.Data,
	}
}
