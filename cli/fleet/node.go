package fleet

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/access"
	"github.com/fleetstake/fleetstake/api/handlers"
	apiserver "github.com/fleetstake/fleetstake/api/server"
	global_config "github.com/fleetstake/fleetstake/cli/config"
	"github.com/fleetstake/fleetstake/eth/contracts"
	"github.com/fleetstake/fleetstake/eth/executionclient"
	"github.com/fleetstake/fleetstake/logging"
	"github.com/fleetstake/fleetstake/manager"
	"github.com/fleetstake/fleetstake/migrations"
	"github.com/fleetstake/fleetstake/monitoring/metrics"
	"github.com/fleetstake/fleetstake/nodeprobe"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/stakingnode"
	"github.com/fleetstake/fleetstake/storage/basedb"
	"github.com/fleetstake/fleetstake/storage/kv"
)

type config struct {
	global_config.GlobalConfig `yaml:"global"`
	DBOptions                  basedb.Options  `yaml:"db"`
	Manager                    manager.Options `yaml:"manager"`

	ExecutionAddr      string `yaml:"ExecutionAddr" env:"EXECUTION_ADDR" env-default:"ws://localhost:8546" env-description:"Execution node endpoint"`
	OperatorPrivateKey string `yaml:"OperatorPrivateKey" env:"OPERATOR_KEY" env-description:"Hex ECDSA key signing fleet transactions"`
	TemplateVersion    uint64 `yaml:"TemplateVersion" env:"TEMPLATE_VERSION" env-default:"1" env-description:"Staking node implementation version registered at startup"`

	PoolAddress             string `yaml:"PoolAddress" env:"POOL_ADDRESS" env-description:"Liquidity pool contract address"`
	DepositContractAddress  string `yaml:"DepositContractAddress" env:"DEPOSIT_CONTRACT_ADDRESS" env-description:"Validator registry deposit contract address"`
	PodFactoryAddress       string `yaml:"PodFactoryAddress" env:"POD_FACTORY_ADDRESS" env-description:"Pod factory contract address"`
	DelegationAddress       string `yaml:"DelegationAddress" env:"DELEGATION_ADDRESS" env-description:"Restaking delegation registry address"`
	CLReceiverAddress       string `yaml:"CLReceiverAddress" env:"CL_RECEIVER_ADDRESS" env-description:"Consensus-layer rewards receiver address"`
	ELReceiverAddress       string `yaml:"ELReceiverAddress" env:"EL_RECEIVER_ADDRESS" env-description:"Execution-layer rewards receiver address"`
	WithdrawalRouterAddress string `yaml:"WithdrawalRouterAddress" env:"WITHDRAWAL_ROUTER_ADDRESS" env-description:"Delayed withdrawal router address"`
	ManagerAddress          string `yaml:"ManagerAddress" env:"MANAGER_ADDRESS" env-description:"Fleet manager account address"`

	MetricsAPIPort int  `yaml:"MetricsAPIPort" env:"METRICS_API_PORT" env-description:"Port to listen on for the metrics API"`
	EnableProfile  bool `yaml:"EnableProfile" env:"ENABLE_PROFILE" env-description:"flag that indicates whether go profiling tools are enabled"`
	APIPort        int  `yaml:"APIPort" env:"API_PORT" env-description:"Port to listen on for the fleet API"`
}

var cfg config

var globalArgs global_config.Args

var StartNodeCmd = &cobra.Command{
	Use:   "start-node",
	Short: "Starts an instance of the fleet node",
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := setupGlobal()
		if err != nil {
			log.Fatal("could not create logger: ", err)
		}
		defer logging.CapturePanic(logger)

		ctx := cmd.Context()
		cfg.DBOptions.Ctx = ctx

		db, err := kv.New(logger.Named(logging.NameBadgerDBLog), cfg.DBOptions)
		if err != nil {
			logger.Fatal("could not setup db", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("could not close db", zap.Error(err))
			}
		}()

		if _, err := migrations.Run(ctx, logger, migrations.Options{Db: db, DbPath: cfg.DBOptions.Path}); err != nil {
			logger.Fatal("could not run migrations", zap.Error(err))
		}

		operatorKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorPrivateKey, "0x"))
		if err != nil {
			logger.Fatal("could not parse operator key", zap.Error(err))
		}
		operatorAddr := ethcrypto.PubkeyToAddress(operatorKey.PublicKey)

		executionClient, err := executionclient.New(ctx, cfg.ExecutionAddr,
			executionclient.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("could not connect to execution client", zap.Error(err))
		}
		defer func() {
			if err := executionClient.Close(); err != nil {
				logger.Error("could not close execution client", zap.Error(err))
			}
		}()

		nodeProber := nodeprobe.NewProber(logger, func() {
			logger.Fatal("Ethereum node is either out of sync or down. Ensure the node is ready to resume.")
		}, map[string]nodeprobe.Node{"execution client": executionClient})
		nodeProber.Start(ctx)
		nodeProber.Wait()

		chainID, err := executionClient.Client().ChainID(ctx)
		if err != nil {
			logger.Fatal("could not read chain id", zap.Error(err))
		}
		signer, err := bind.NewKeyedTransactorWithChainID(operatorKey, chainID)
		if err != nil {
			logger.Fatal("could not create transactor", zap.Error(err))
		}

		bound, err := contracts.New(logger, executionClient.Client(), signer, contracts.Addresses{
			Pool:            ethcommon.HexToAddress(cfg.PoolAddress),
			DepositContract: ethcommon.HexToAddress(cfg.DepositContractAddress),
			PodFactory:      ethcommon.HexToAddress(cfg.PodFactoryAddress),
			Delegation:      ethcommon.HexToAddress(cfg.DelegationAddress),
			CLReceiver:      ethcommon.HexToAddress(cfg.CLReceiverAddress),
			ELReceiver:      ethcommon.HexToAddress(cfg.ELReceiverAddress),
		}, executionClient.RequestTimeout())
		if err != nil {
			logger.Fatal("could not bind contracts", zap.Error(err))
		}

		grants := access.NewGrants(logger.Named(logging.NameAccessControl), db)
		if err := bootstrapGrants(grants, operatorAddr); err != nil {
			logger.Fatal("could not bootstrap capability grants", zap.Error(err))
		}

		cfg.Manager.Logger = logger.Named(logging.NameStakingNodesMgr)
		cfg.Manager.DB = db
		cfg.Manager.Nodes = registrystorage.NewNodes(logger, db)
		cfg.Manager.Validators = registrystorage.NewValidators(logger, db)
		cfg.Manager.Settings = registrystorage.NewSettings(logger, db)
		cfg.Manager.Events = registrystorage.NewEvents(logger, db)
		cfg.Manager.Access = grants
		cfg.Manager.Pool = bound.Pool
		cfg.Manager.DepositContract = bound.DepositContract
		cfg.Manager.PodFactory = bound.PodFactory
		cfg.Manager.Delegation = bound.Delegation
		cfg.Manager.Distributor = bound.Distributor
		cfg.Manager.WithdrawalRouter = ethcommon.HexToAddress(cfg.WithdrawalRouterAddress)
		cfg.Manager.Address = ethcommon.HexToAddress(cfg.ManagerAddress)

		mgr, err := manager.New(cfg.Manager)
		if err != nil {
			logger.Fatal("could not create staking nodes manager", zap.Error(err))
		}

		// The template only persists its version, so it is re-registered on
		// every boot before any node can be created or upgraded.
		template, err := stakingnode.NewTemplate(cfg.TemplateVersion, nil)
		if err != nil {
			logger.Fatal("could not build node template", zap.Error(err))
		}
		if err := mgr.RegisterStakingNodeImplementation(operatorAddr, template); err != nil {
			logger.Fatal("could not register node implementation", zap.Error(err))
		}

		if cfg.MetricsAPIPort > 0 {
			go startMetricsHandler(ctx, logger, db, nodeProber, cfg.MetricsAPIPort, cfg.EnableProfile)
		}

		if cfg.APIPort > 0 {
			apiServer := apiserver.New(
				logger.Named(logging.NameAPIServer),
				fmt.Sprintf(":%d", cfg.APIPort),
				&handlers.Nodes{Store: cfg.Manager.Nodes},
				&handlers.Validators{Store: cfg.Manager.Validators},
				&handlers.Events{Store: cfg.Manager.Events},
				&handlers.Health{Checker: nodeProber},
			)
			go func() {
				if err := apiServer.Run(); err != nil {
					logger.Fatal("could not serve API", zap.Error(err))
				}
			}()
		}

		logger.Info("fleet node running", zap.Uint64("nodes", mgr.NodeCount()))
		<-ctx.Done()
	},
}

func setupGlobal() (*zap.Logger, error) {
	if globalArgs.ConfigPath != "" {
		if err := cleanenv.ReadConfig(globalArgs.ConfigPath, &cfg); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}
	if err := logging.SetGlobalLogger(cfg.LogLevel, cfg.LogLevelFormat, cfg.LogFilePath); err != nil {
		return nil, fmt.Errorf("could not setup logger: %w", err)
	}
	return zap.L(), nil
}

// bootstrapGrants hands the operator account every capability. Granting an
// already held capability is a no-op, so reboots are safe.
func bootstrapGrants(grants *access.Grants, operator ethcommon.Address) error {
	for _, capability := range []access.Capability{
		access.CapabilityAdmin,
		access.CapabilityValidatorManager,
		access.CapabilityStakingNodeCreator,
		access.CapabilityStakingNodesAdmin,
		access.CapabilityDelegator,
		access.CapabilityPauser,
	} {
		if err := grants.Grant(operator, capability); err != nil {
			return err
		}
	}
	return nil
}

func startMetricsHandler(ctx context.Context, logger *zap.Logger, db basedb.Database, healthChecker metrics.HealthChecker, port int, enableProf bool) {
	logger = logger.Named(logging.NameMetricsHandler)
	handler := metrics.NewHandler(ctx, db, enableProf, healthChecker)
	addr := fmt.Sprintf(":%d", port)
	if err := handler.Start(logger, http.NewServeMux(), addr); err != nil {
		logger.Error("metrics handler failed", zap.Error(err))
	}
}

func init() {
	global_config.ProcessArgs(&cfg, &globalArgs, StartNodeCmd)
}
