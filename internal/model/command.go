package model

// CommandKind is the verb of an engine command.
type CommandKind string

const (
	CmdDeploy   CommandKind = "DEPLOY"
	CmdUndeploy CommandKind = "UNDEPLOY"
	CmdDone     CommandKind = "DONE"
	CmdStop     CommandKind = "STOP"
)

// EngineCommand is one message on the engine-command bus:
// the HTTP surface enqueues DEPLOY/UNDEPLOY; the Trader enqueues DONE
// (cycle count reached) and STOP (unrecoverable advice-processing
// error) for a deployment it is executing.
type EngineCommand struct {
	Kind         CommandKind
	UserProfile  string
	Deployment   Deployment // populated for DEPLOY
	DeploymentID string     // populated for UNDEPLOY/DONE/STOP
	Err          string     // populated for STOP
}
