package manager

import (
	"context"
	"math/big"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/access"
	"github.com/fleetstake/fleetstake/logging"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/stakingnode"
	"github.com/fleetstake/fleetstake/storage/basedb"
	"github.com/fleetstake/fleetstake/storage/kv"
)

var (
	adminAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creatorAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	valMgrAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	pauserAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	nodesAdmin    = common.HexToAddress("0x00000000000000000000000000000000000000a5")
	strangerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	routerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	managerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	clReceiverAdr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	elReceiverAdr = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

type fakeAccess struct {
	grants map[common.Address]map[access.Capability]struct{}
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{grants: make(map[common.Address]map[access.Capability]struct{})}
}

func (f *fakeAccess) grant(account common.Address, capability access.Capability) {
	if f.grants[account] == nil {
		f.grants[account] = make(map[access.Capability]struct{})
	}
	f.grants[account][capability] = struct{}{}
}

func (f *fakeAccess) HasCapability(account common.Address, capability access.Capability) bool {
	_, ok := f.grants[account][capability]
	return ok
}

type fakePool struct {
	withdrawals []*big.Int
	deposits    []*big.Int
	withdrawErr error
}

func (f *fakePool) Withdraw(_ context.Context, amount *big.Int) error {
	if f.withdrawErr != nil {
		return f.withdrawErr
	}
	f.withdrawals = append(f.withdrawals, new(big.Int).Set(amount))
	return nil
}

func (f *fakePool) Deposit(_ context.Context, amount *big.Int) error {
	f.deposits = append(f.deposits, new(big.Int).Set(amount))
	return nil
}

type registryDeposit struct {
	pubkey phase0.BLSPubKey
	amount phase0.Gwei
}

type fakeDepositContract struct {
	deposits []registryDeposit
	failAt   int // 0-based call index, -1 to never fail
}

func (f *fakeDepositContract) Deposit(
	_ context.Context,
	pubkey phase0.BLSPubKey,
	_ [32]byte,
	_ phase0.BLSSignature,
	_ phase0.Root,
	amount phase0.Gwei,
) error {
	if f.failAt >= 0 && len(f.deposits) == f.failAt {
		return errors.New("registry rejected deposit")
	}
	f.deposits = append(f.deposits, registryDeposit{pubkey: pubkey, amount: amount})
	return nil
}

type fakePod struct {
	addr       common.Address
	nonBeacon  *big.Int
	withdrawTo []common.Address
}

func (p *fakePod) Address() common.Address { return p.addr }

func (p *fakePod) NonBeaconChainETHBalance(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(p.nonBeacon), nil
}

func (p *fakePod) WithdrawNonBeaconChainETHBalance(_ context.Context, recipient common.Address, amount *big.Int) error {
	p.nonBeacon.Sub(p.nonBeacon, amount)
	p.withdrawTo = append(p.withdrawTo, recipient)
	return nil
}

type fakePodFactory struct {
	pods map[common.Address]*fakePod
}

func newFakePodFactory() *fakePodFactory {
	return &fakePodFactory{pods: make(map[common.Address]*fakePod)}
}

func (f *fakePodFactory) CreatePod(_ context.Context, owner common.Address) (stakingnode.Pod, error) {
	if p, ok := f.pods[owner]; ok {
		return p, nil
	}
	p := &fakePod{
		addr:      common.BytesToAddress(crypto.Keccak256(owner.Bytes())[12:]),
		nonBeacon: new(big.Int),
	}
	f.pods[owner] = p
	return p, nil
}

func (f *fakePodFactory) GetPod(owner common.Address) (stakingnode.Pod, bool) {
	p, ok := f.pods[owner]
	if !ok {
		return nil, false
	}
	return p, true
}

type fakeDelegation struct {
	operators map[common.Address]common.Address
}

func newFakeDelegation() *fakeDelegation {
	return &fakeDelegation{operators: make(map[common.Address]common.Address)}
}

func (f *fakeDelegation) DelegateTo(_ context.Context, staker, operator common.Address, _ []byte, _ [32]byte) error {
	f.operators[staker] = operator
	return nil
}

func (f *fakeDelegation) Undelegate(_ context.Context, staker common.Address) error {
	delete(f.operators, staker)
	return nil
}

func (f *fakeDelegation) DelegatedTo(_ context.Context, staker common.Address) (common.Address, error) {
	return f.operators[staker], nil
}

type fakeReceiver struct {
	addr     common.Address
	received []*big.Int
	err      error
}

func (f *fakeReceiver) Address() common.Address { return f.addr }

func (f *fakeReceiver) Receive(_ context.Context, _ common.Address, amount *big.Int) error {
	if f.err != nil {
		return f.err
	}
	f.received = append(f.received, new(big.Int).Set(amount))
	return nil
}

type fakeDistributor struct {
	cl *fakeReceiver
	el *fakeReceiver
}

func (f *fakeDistributor) ConsensusLayerReceiver() RewardsReceiver { return f.cl }
func (f *fakeDistributor) ExecutionLayerReceiver() RewardsReceiver { return f.el }

type testFixture struct {
	db          *kv.BadgerDB
	nodes       *registrystorage.Nodes
	validators  *registrystorage.Validators
	settings    *registrystorage.Settings
	events      *registrystorage.Events
	acl         *fakeAccess
	pool        *fakePool
	registry    *fakeDepositContract
	podFactory  *fakePodFactory
	delegation  *fakeDelegation
	distributor *fakeDistributor
	mgr         *StakingNodesManager
}

func newTestFixture(t *testing.T, maxNodeCount uint64) *testFixture {
	logger := logging.TestLogger(t)
	db, err := kv.NewInMemory(logger, basedb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	f := &testFixture{
		db:         db,
		nodes:      registrystorage.NewNodes(logger, db),
		validators: registrystorage.NewValidators(logger, db),
		settings:   registrystorage.NewSettings(logger, db),
		events:     registrystorage.NewEvents(logger, db),
		acl:        newFakeAccess(),
		pool:       &fakePool{},
		registry:   &fakeDepositContract{failAt: -1},
		podFactory: newFakePodFactory(),
		delegation: newFakeDelegation(),
		distributor: &fakeDistributor{
			cl: &fakeReceiver{addr: clReceiverAdr},
			el: &fakeReceiver{addr: elReceiverAdr},
		},
	}
	f.acl.grant(adminAddr, access.CapabilityAdmin)
	f.acl.grant(creatorAddr, access.CapabilityStakingNodeCreator)
	f.acl.grant(valMgrAddr, access.CapabilityValidatorManager)
	f.acl.grant(pauserAddr, access.CapabilityPauser)
	f.acl.grant(nodesAdmin, access.CapabilityStakingNodesAdmin)

	f.mgr, err = New(f.options(logger, maxNodeCount))
	require.NoError(t, err)
	return f
}

func (f *testFixture) options(logger *zap.Logger, maxNodeCount uint64) Options {
	return Options{
		Logger:           logger,
		DB:               f.db,
		Nodes:            f.nodes,
		Validators:       f.validators,
		Settings:         f.settings,
		Events:           f.events,
		Access:           f.acl,
		Pool:             f.pool,
		DepositContract:  f.registry,
		PodFactory:       f.podFactory,
		Delegation:       f.delegation,
		Distributor:      f.distributor,
		WithdrawalRouter: routerAddr,
		Address:          managerAddr,
		MaxNodeCount:     maxNodeCount,
	}
}

func (f *testFixture) registerTemplate(t *testing.T, version uint64) *stakingnode.Template {
	template, err := stakingnode.NewTemplate(version, nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.RegisterStakingNodeImplementation(adminAddr, template))
	return template
}

func (f *testFixture) createNode(t *testing.T) *stakingnode.Node {
	node, err := f.mgr.CreateStakingNode(context.Background(), creatorAddr)
	require.NoError(t, err)
	return node
}

func (f *testFixture) eventsOfType(t *testing.T, eventType string) []registrystorage.Event {
	all, err := f.events.List()
	require.NoError(t, err)
	var filtered []registrystorage.Event
	for _, e := range all {
		if e.Type == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func TestCreateStakingNode(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a registered implementation", func(t *testing.T) {
		f := newTestFixture(t, 4)
		_, err := f.mgr.CreateStakingNode(ctx, creatorAddr)
		require.ErrorIs(t, err, ErrNoImplementationExists)
	})

	t.Run("requires the creator capability", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)
		_, err := f.mgr.CreateStakingNode(ctx, strangerAddr)
		require.ErrorIs(t, err, access.ErrUnauthorized)
	})

	t.Run("creates nodes with sequential ids and pods", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)

		first := f.createNode(t)
		second := f.createNode(t)
		require.Equal(t, uint64(0), first.Index())
		require.Equal(t, uint64(1), second.Index())
		require.NotEqual(t, first.Address(), second.Address())
		require.Equal(t, uint64(2), f.mgr.NodeCount())

		// Every created node gets a pod, so withdrawal credentials resolve.
		wc, err := first.WithdrawalCredentials()
		require.NoError(t, err)
		require.Equal(t, byte(0x01), wc[0])

		require.Len(t, f.eventsOfType(t, registrystorage.EventTypeNodeCreated), 2)
		require.Len(t, f.eventsOfType(t, registrystorage.EventTypePodCreated), 2)
	})

	t.Run("enforces the capacity cap until it is raised", func(t *testing.T) {
		f := newTestFixture(t, 2)
		f.registerTemplate(t, 1)

		f.createNode(t)
		f.createNode(t)
		_, err := f.mgr.CreateStakingNode(ctx, creatorAddr)
		require.ErrorIs(t, err, ErrTooManyStakingNodes)

		require.ErrorIs(t, f.mgr.SetMaxNodeCount(strangerAddr, 3), access.ErrUnauthorized)
		require.NoError(t, f.mgr.SetMaxNodeCount(adminAddr, 3))
		f.createNode(t)
		require.Equal(t, uint64(3), f.mgr.NodeCount())
	})
}

func TestImplementationLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("second registration is rejected", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)
		template, err := stakingnode.NewTemplate(2, nil)
		require.NoError(t, err)
		require.ErrorIs(t, f.mgr.RegisterStakingNodeImplementation(adminAddr, template), ErrImplementationAlreadyExists)
	})

	t.Run("upgrade before registration is rejected", func(t *testing.T) {
		f := newTestFixture(t, 4)
		template, err := stakingnode.NewTemplate(1, nil)
		require.NoError(t, err)
		require.ErrorIs(t, f.mgr.UpgradeStakingNodeImplementation(ctx, adminAddr, template), ErrNoImplementationExists)
	})

	t.Run("upgrade runs only unseen initializer steps", func(t *testing.T) {
		f := newTestFixture(t, 4)

		var runs []string
		v1, err := stakingnode.NewTemplate(1, []stakingnode.Initializer{{
			Version: 1,
			Name:    "v1",
			Run: func(context.Context, *stakingnode.Node) error {
				runs = append(runs, "v1")
				return nil
			},
		}})
		require.NoError(t, err)
		require.NoError(t, f.mgr.RegisterStakingNodeImplementation(adminAddr, v1))

		node := f.createNode(t)
		require.Equal(t, []string{"v1"}, runs)
		require.Equal(t, uint64(1), node.InitializedVersion())

		v2, err := stakingnode.NewTemplate(2, []stakingnode.Initializer{
			{Version: 1, Name: "v1", Run: func(context.Context, *stakingnode.Node) error {
				runs = append(runs, "v1-again")
				return nil
			}},
			{Version: 2, Name: "v2", Run: func(context.Context, *stakingnode.Node) error {
				runs = append(runs, "v2")
				return nil
			}},
		})
		require.NoError(t, err)
		require.NoError(t, f.mgr.UpgradeStakingNodeImplementation(ctx, adminAddr, v2))

		require.Equal(t, []string{"v1", "v2"}, runs)
		require.Equal(t, uint64(2), node.InitializedVersion())

		// Nodes created after the upgrade start at the new version.
		fresh := f.createNode(t)
		require.Equal(t, uint64(2), fresh.InitializedVersion())
	})
}

func TestProcessRewards(t *testing.T) {
	ctx := context.Background()
	amount := big.NewInt(5e18)

	t.Run("rejects callers that are not the registered node", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)
		f.createNode(t)

		err := f.mgr.ProcessRewards(ctx, 0, stakingnode.ConsensusLayerRewards, amount, nil)
		require.ErrorIs(t, err, ErrCallerNotStakingNode)

		err = f.mgr.ProcessRewards(ctx, 7, stakingnode.ConsensusLayerRewards, amount, nil)
		require.ErrorIs(t, err, ErrCallerNotStakingNode)
	})

	t.Run("rejects unknown rewards types", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)
		node := f.createNode(t)

		err := f.mgr.ProcessRewards(ctx, 0, stakingnode.RewardsType(99), amount, node)
		require.ErrorIs(t, err, ErrInvalidRewardsType)
	})

	t.Run("forwards the node balance to the consensus receiver", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)
		node := f.createNode(t)

		require.NoError(t, node.ReceiveETH(routerAddr, amount))
		require.NoError(t, node.ProcessDelayedWithdrawals(ctx, nodesAdmin))

		require.Len(t, f.distributor.cl.received, 1)
		require.Equal(t, amount, f.distributor.cl.received[0])
		require.Empty(t, f.distributor.el.received)
		require.Zero(t, node.Balance().Sign())
		require.Len(t, f.eventsOfType(t, registrystorage.EventTypeRewardsProcessed), 1)
	})

	t.Run("a rejected transfer leaves the balance on the node", func(t *testing.T) {
		f := newTestFixture(t, 4)
		f.registerTemplate(t, 1)
		node := f.createNode(t)
		f.distributor.cl.err = errors.New("receiver unavailable")

		require.NoError(t, node.ReceiveETH(routerAddr, amount))
		err := node.ProcessDelayedWithdrawals(ctx, nodesAdmin)
		require.ErrorIs(t, err, ErrTransferFailed)
		require.Equal(t, amount, node.Balance())
		require.Empty(t, f.eventsOfType(t, registrystorage.EventTypeRewardsProcessed))
	})
}

func TestManagerRestoresState(t *testing.T) {
	logger := logging.TestLogger(t)
	f := newTestFixture(t, 4)
	f.registerTemplate(t, 1)
	f.createNode(t)
	f.createNode(t)
	require.NoError(t, f.mgr.SetMaxNodeCount(adminAddr, 7))
	require.NoError(t, f.mgr.SetValidatorRegistrationPaused(pauserAddr, true))

	restored, err := New(f.options(logger, 4))
	require.NoError(t, err)
	require.Equal(t, uint64(2), restored.NodeCount())
	require.Equal(t, uint64(7), restored.MaxNodeCount())
	require.True(t, restored.IsValidatorRegistrationPaused())

	node, found := restored.Node(1)
	require.True(t, found)
	require.Equal(t, uint64(1), node.Index())
	wc, err := node.WithdrawalCredentials()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), wc[0])
}
