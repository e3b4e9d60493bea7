package storage

import (
	"math/big"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/fleetstake/fleetstake/logging"
	"github.com/fleetstake/fleetstake/storage/basedb"
	"github.com/fleetstake/fleetstake/storage/kv"
)

func newStorageForTest(t *testing.T) *kv.BadgerDB {
	logger := logging.TestLogger(t)
	db, err := kv.NewInMemory(logger, basedb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestNodesStorage(t *testing.T) {
	logger := logging.TestLogger(t)
	db := newStorageForTest(t)
	nodes := NewNodes(logger, db)

	t.Run("get non-existing node", func(t *testing.T) {
		record, found, err := nodes.GetNode(0)
		require.NoError(t, err)
		require.False(t, found)
		require.Nil(t, record)
	})

	t.Run("save and get node", func(t *testing.T) {
		pod := common.HexToAddress("0x2222222222222222222222222222222222222222")
		record := &NodeRecord{
			Index:              0,
			Address:            common.HexToAddress("0x1111111111111111111111111111111111111111"),
			PodAddress:         &pod,
			AllocatedETH:       big.NewInt(0),
			Balance:            big.NewInt(0),
			InitializedVersion: 1,
		}
		require.NoError(t, nodes.SaveNode(nil, record))

		fromDB, found, err := nodes.GetNode(0)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, record.Address, fromDB.Address)
		require.Equal(t, pod, *fromDB.PodAddress)
		require.Equal(t, uint64(1), fromDB.InitializedVersion)
	})

	t.Run("list preserves index order", func(t *testing.T) {
		for i := uint64(1); i < 4; i++ {
			require.NoError(t, nodes.SaveNode(nil, &NodeRecord{
				Index:        i,
				AllocatedETH: big.NewInt(0),
				Balance:      big.NewInt(0),
			}))
		}
		records, err := nodes.ListNodes()
		require.NoError(t, err)
		require.Len(t, records, 4)
		for i, record := range records {
			require.Equal(t, uint64(i), record.Index)
		}
	})
}

func TestValidatorsStorage(t *testing.T) {
	logger := logging.TestLogger(t)
	db := newStorageForTest(t)
	validators := NewValidators(logger, db)

	var pk phase0.BLSPubKey
	pk[0] = 0xab

	t.Run("credential starts unused", func(t *testing.T) {
		used, err := validators.IsCredentialUsed(pk)
		require.NoError(t, err)
		require.False(t, used)
	})

	t.Run("append assigns sequential indices", func(t *testing.T) {
		first, err := validators.AppendValidator(nil, pk, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(0), first.Index)

		var pk2 phase0.BLSPubKey
		pk2[0] = 0xcd
		second, err := validators.AppendValidator(nil, pk2, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(1), second.Index)

		records, err := validators.ListValidators()
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, pk, records[0].PublicKey)
		require.Equal(t, uint64(1), records[1].NodeID)

		count, err := validators.CountValidators()
		require.NoError(t, err)
		require.Equal(t, int64(2), count)
	})

	t.Run("mark and check credential", func(t *testing.T) {
		require.NoError(t, validators.MarkCredentialUsed(nil, pk, 0))
		used, err := validators.IsCredentialUsed(pk)
		require.NoError(t, err)
		require.True(t, used)
	})

	t.Run("writes inside a discarded txn are invisible", func(t *testing.T) {
		var pk3 phase0.BLSPubKey
		pk3[0] = 0xef

		txn := db.Begin()
		_, err := validators.AppendValidator(txn, pk3, 0)
		require.NoError(t, err)
		require.NoError(t, validators.MarkCredentialUsed(txn, pk3, 0))
		txn.Discard()

		used, err := validators.IsCredentialUsed(pk3)
		require.NoError(t, err)
		require.False(t, used)

		count, err := validators.CountValidators()
		require.NoError(t, err)
		require.Equal(t, int64(2), count)
	})
}

func TestSettingsStorage(t *testing.T) {
	logger := logging.TestLogger(t)
	db := newStorageForTest(t)
	settings := NewSettings(logger, db)

	_, found, err := settings.GetMaxNodeCount()
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, settings.SetMaxNodeCount(nil, 10))
	count, found, err := settings.GetMaxNodeCount()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), count)

	paused, err := settings.GetRegistrationPaused()
	require.NoError(t, err)
	require.False(t, paused)

	require.NoError(t, settings.SetRegistrationPaused(nil, true))
	paused, err = settings.GetRegistrationPaused()
	require.NoError(t, err)
	require.True(t, paused)
}

func TestEventsStorage(t *testing.T) {
	logger := logging.TestLogger(t)
	db := newStorageForTest(t)
	events := NewEvents(logger, db)

	type payload struct {
		NodeID uint64 `json:"node_id"`
	}

	require.NoError(t, events.Append(nil, EventTypeNodeCreated, payload{NodeID: 0}))
	require.NoError(t, events.Append(nil, EventTypeValidatorRegistered, payload{NodeID: 0}))

	list, err := events.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, uint64(0), list[0].Seq)
	require.Equal(t, EventTypeNodeCreated, list[0].Type)
	require.Equal(t, uint64(1), list[1].Seq)
	require.Equal(t, EventTypeValidatorRegistered, list[1].Type)
}
