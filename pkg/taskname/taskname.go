package taskname

const (
	// Order tasks
	OrderCompleted = "order:completed"

	// Code tasks
	CodeSweepExpired = "code:sweep:expired"
)
