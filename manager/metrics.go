package manager

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fleetstake/fleetstake/stakingnode"
)

var (
	metricStakingNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetstake:manager:staking_nodes",
		Help: "Number of staking nodes in the arena",
	})
	metricValidatorsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetstake:manager:validators_registered_total",
		Help: "Number of validators committed to the ledger",
	})
	metricRegistrationPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetstake:manager:registration_paused",
		Help: "Whether validator registration is paused",
	})
	metricRewardsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetstake:manager:rewards_processed_wei",
		Help: "Total rewards forwarded to the distributor, in wei",
	}, []string{"rewards_type"})
)

func setPausedMetric(paused bool) {
	if paused {
		metricRegistrationPaused.Set(1)
	} else {
		metricRegistrationPaused.Set(0)
	}
}

func addRewardsMetric(rewardsType stakingnode.RewardsType, amount *big.Int) {
	wei, _ := new(big.Float).SetInt(amount).Float64()
	metricRewardsProcessed.WithLabelValues(rewardsType.String()).Add(wei)
}
