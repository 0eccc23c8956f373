package pipeline

import (
	"fmt"

	"github.com/smazurov/devnode/internal/vcs"
)

// CreateRequest starts a run that clones a repository.
type CreateRequest struct {
	ProjectID string
	RepoURL   string
	Mode      Mode
	// Target is the clone destination for ModeCloneInto, the parent folder for
	// ModeCloneSubfolder and the checkout itself for ModeReuse.
	Target string
	// FolderName names the subfolder in ModeCloneSubfolder. Derived from
	// RepoURL when empty.
	FolderName string
	// Branch to check out after cloning. CreateBranch creates it from HEAD.
	Branch       string
	CreateBranch bool
	Identity     vcs.Identity
}

// OpenRequest starts a run on an existing checkout.
type OpenRequest struct {
	ProjectID string
	Dir       string
	Identity  vcs.Identity
}

// CancelRequest stops a project's run and processes.
type CancelRequest struct {
	ProjectID      string
	WorkspacePath  string
	RepoFolderName string
	// DeleteFiles removes the workspace directory. Files are kept by default.
	DeleteFiles bool
}

// CancelResult reports what Cancel did.
type CancelResult struct {
	RunID          string   `json:"run_id,omitempty"`
	Stopped        []string `json:"stopped"`
	StoppedOrphans []int    `json:"stopped_orphans,omitempty"`
	Workspace      string   `json:"workspace,omitempty"`
	Deleted        bool     `json:"deleted"`
	PartialRemoved bool     `json:"partial_removed"`
}

func (r CreateRequest) validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidRequest)
	}
	if r.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	switch r.Mode {
	case ModeReuse:
	case ModeCloneInto, ModeCloneSubfolder:
		if r.RepoURL == "" {
			return fmt.Errorf("%w: repository url is required to clone", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, r.Mode)
	}
	return nil
}

func (r OpenRequest) toCreate() CreateRequest {
	return CreateRequest{
		ProjectID: r.ProjectID,
		Mode:      ModeReuse,
		Target:    r.Dir,
		Identity:  r.Identity,
	}
}
