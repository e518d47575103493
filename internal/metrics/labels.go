package metrics

const (
	namespace = "clusterlink"

	subsystemReconcile = "reconcile"
	subsystemPoll      = "poll"
	subsystemRequest   = "request"
)

const (
	LabelTopology = "topology"
	LabelStrategy = "strategy"
	LabelResult   = "result"
	LabelReason   = "reason"
	LabelStatus   = "status"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)
