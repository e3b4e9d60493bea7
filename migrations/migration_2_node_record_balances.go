package migrations

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
)

// migrationNodeRecordBalances rewrites node records persisted before the
// balance ledger existed, so the nil amounts become explicit zeroes.
var migrationNodeRecordBalances = Migration{
	Name: "migration_2_node_record_balances",
	Run: func(ctx context.Context, logger *zap.Logger, opt Options, key []byte) error {
		nodes := registrystorage.NewNodes(logger, opt.Db)
		records, err := nodes.ListNodes()
		if err != nil {
			return err
		}

		rewritten := 0
		for i := range records {
			record := &records[i]
			if record.AllocatedETH != nil && record.Balance != nil {
				continue
			}
			if record.AllocatedETH == nil {
				record.AllocatedETH = new(big.Int)
			}
			if record.Balance == nil {
				record.Balance = new(big.Int)
			}
			if err := nodes.SaveNode(nil, record); err != nil {
				return err
			}
			rewritten++
		}
		if rewritten > 0 {
			logger.Info("rewrote node records", zap.Int("count", rewritten))
		}
		return markCompleted(opt.Db, key)
	},
}
