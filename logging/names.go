package logging

const (
	NameAPIServer       = "APIServer"
	NameAccessControl   = "AccessControl"
	NameExecutionClient = "ExecutionClient"
	NameMetricsHandler  = "MetricsHandler"
	NameStakingNode     = "StakingNode"
	NameStakingNodesMgr = "StakingNodesManager"

	NameBadgerDBLog = "BadgerDBLog"
)
