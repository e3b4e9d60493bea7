package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/fleetstake/fleetstake/logging"
	"github.com/fleetstake/fleetstake/storage/basedb"
	"github.com/fleetstake/fleetstake/storage/kv"
)

func TestGrants(t *testing.T) {
	logger := logging.TestLogger(t)
	db, err := kv.NewInMemory(logger, basedb.Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	grants := NewGrants(logger, db)
	admin := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	t.Run("no grant", func(t *testing.T) {
		require.False(t, grants.HasCapability(admin, CapabilityAdmin))
	})

	t.Run("grant and check", func(t *testing.T) {
		require.NoError(t, grants.Grant(admin, CapabilityAdmin))
		require.True(t, grants.HasCapability(admin, CapabilityAdmin))
		require.False(t, grants.HasCapability(admin, CapabilityDelegator))
	})

	t.Run("grant is idempotent", func(t *testing.T) {
		require.NoError(t, grants.Grant(admin, CapabilityAdmin))
		caps, err := grants.List(admin)
		require.NoError(t, err)
		require.Equal(t, []Capability{CapabilityAdmin}, caps)
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, grants.Grant(admin, CapabilityPauser))
		require.NoError(t, grants.Revoke(admin, CapabilityAdmin))
		require.False(t, grants.HasCapability(admin, CapabilityAdmin))
		require.True(t, grants.HasCapability(admin, CapabilityPauser))
	})
}
