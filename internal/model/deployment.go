package model

// DeploymentStatus is the lifecycle state of a Deployment.
type DeploymentStatus string

const (
	DeploymentNew      DeploymentStatus = "NEW"
	DeploymentRunning  DeploymentStatus = "RUNNING"
	DeploymentFinished DeploymentStatus = "FINISHED"
	DeploymentStopped  DeploymentStatus = "STOPPED"
	DeploymentError    DeploymentStatus = "ERROR"
)

// Deployment is a running instance of an Algo. Exactly one Strategy Worker
// exists per Deployment while it is in state RUNNING.
type Deployment struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	AlgoName  string           `json:"algo_name"`
	Amount    float64          `json:"amount"`
	NumCycles int              `json:"num_cycles"`
	Status    DeploymentStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
}
