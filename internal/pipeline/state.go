package pipeline

// State is a pipeline run state.
type State string

// Pipeline states in execution order, plus the terminal side states.
const (
	StateInitializing          State = "Initializing"
	StateAcquiringWorkspace    State = "AcquiringWorkspace"
	StateBranchSetup           State = "BranchSetup"
	StateIdentityConfiguration State = "IdentityConfiguration"
	StateDependencyInstall     State = "DependencyInstall"
	StateBuild                 State = "Build"
	StateServerStarting        State = "ServerStarting"
	StateRunning               State = "Running"
	StateFailed                State = "Failed"
	StateCancelling            State = "Cancelling"
	StateCancelled             State = "Cancelled"
)

// Status is the overall outcome of a run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Kind says how a run was started.
type Kind string

// Run kinds.
const (
	KindCreate Kind = "create"
	KindOpen   Kind = "open"
	KindReopen Kind = "reopen"
)

// Mode selects how AcquiringWorkspace obtains the checkout.
type Mode int

// Workspace acquisition modes.
const (
	// ModeReuse uses an existing checkout as is. BranchSetup is skipped.
	ModeReuse Mode = iota
	// ModeCloneInto clones directly into Target, which must be empty or absent.
	ModeCloneInto
	// ModeCloneSubfolder clones into a new folder under Target, suffixing the
	// name (repo, repo-1, repo-2, ...) on collision.
	ModeCloneSubfolder
)

func (m Mode) String() string {
	switch m {
	case ModeReuse:
		return "reuse"
	case ModeCloneInto:
		return "clone-into"
	case ModeCloneSubfolder:
		return "clone-subfolder"
	default:
		return "unknown"
	}
}

// Step status tokens recorded on a run. Success and failure match the tokens
// published on the output channel.
const (
	stepSuccess = "success"
	stepFailure = "failure"
	stepSkipped = "skipped"
	stepWarning = "warning"
)

// Process roles used in registry keys.
const (
	roleInstall = "install"
	roleBuild   = "build"
	roleServer  = "server"
)
