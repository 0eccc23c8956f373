package models

import (
	"time"

	"github.com/smazurov/devnode/internal/pipeline"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/updater"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"v0.3.0" doc:"Application version"`
	GitCommit string `json:"git_commit" doc:"Source revision"`
	Modified  bool   `json:"modified,omitempty" doc:"Built from a dirty tree"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Process models
type ProcessInfo struct {
	Key       string    `json:"key" example:"web:server" doc:"Registry key (project:role)"`
	PID       int       `json:"pid" doc:"Process id"`
	Command   string    `json:"command" example:"pnpm" doc:"Executable"`
	Args      []string  `json:"args" doc:"Arguments"`
	Dir       string    `json:"dir" doc:"Working directory"`
	StartedAt time.Time `json:"started_at" doc:"Start time"`
}

type ProcessListData struct {
	Processes []ProcessInfo `json:"processes" doc:"Processes owned by this session"`
	Count     int           `json:"count" doc:"Number of processes"`
}

type ProcessListResponse struct {
	Body ProcessListData
}

type TrackedListData struct {
	Entries []tracker.Entry `json:"entries" doc:"Persisted server processes"`
	Count   int             `json:"count" doc:"Number of entries"`
}

type TrackedListResponse struct {
	Body TrackedListData
}

type ReapRequestData struct {
	Terminate bool `json:"terminate,omitempty" doc:"Stop live servers left by a previous session"`
}

type ReapRequest struct {
	Body ReapRequestData `required:"false"`
}

type ReapResponse struct {
	Body pipeline.ReapResult
}

// Run models
type RunListData struct {
	Runs []pipeline.RunInfo `json:"runs" doc:"Active runs followed by recent finished runs"`
}

type RunListResponse struct {
	Body RunListData
}

type RunRequest struct {
	RunID string `path:"run_id" doc:"Run identifier"`
}

type RunResponse struct {
	Body pipeline.RunInfo
}

// Project models
type IdentityData struct {
	Name  string `json:"name,omitempty" doc:"Commit author name"`
	Email string `json:"email,omitempty" doc:"Commit author email"`
}

type CloneRequestData struct {
	RepoURL      string       `json:"repo_url" minLength:"1" example:"https://github.com/acme/site.git" doc:"Repository to clone"`
	Mode         string       `json:"mode,omitempty" enum:"into,subfolder" default:"subfolder" doc:"Clone directly into target or into a new subfolder of it"`
	Target       string       `json:"target" minLength:"1" example:"/home/dev/projects" doc:"Clone target or parent folder"`
	FolderName   string       `json:"folder_name,omitempty" doc:"Subfolder name, derived from the URL when empty"`
	Branch       string       `json:"branch,omitempty" doc:"Branch to check out after cloning"`
	CreateBranch bool         `json:"create_branch,omitempty" doc:"Create the branch from HEAD"`
	Identity     IdentityData `json:"identity,omitempty" doc:"Commit identity for the workspace"`
}

type CloneRequest struct {
	ProjectID string `path:"project_id" minLength:"1" doc:"Project identifier"`
	Body      CloneRequestData
}

type OpenRequestData struct {
	Dir      string       `json:"dir" minLength:"1" example:"/home/dev/projects/site" doc:"Existing checkout"`
	Reopen   bool         `json:"reopen,omitempty" doc:"Stop the project's previous processes first"`
	Identity IdentityData `json:"identity,omitempty" doc:"Commit identity for the workspace"`
}

type OpenRequest struct {
	ProjectID string `path:"project_id" minLength:"1" doc:"Project identifier"`
	Body      OpenRequestData
}

type CancelRequestData struct {
	WorkspacePath  string `json:"workspace_path,omitempty" doc:"Workspace folder; defaults to the active run's checkout"`
	RepoFolderName string `json:"repo_folder_name,omitempty" doc:"Checkout folder inside workspace_path"`
	DeleteFiles    bool   `json:"delete_files,omitempty" doc:"Delete the workspace; files are kept by default"`
}

type CancelRequest struct {
	ProjectID string            `path:"project_id" minLength:"1" doc:"Project identifier"`
	Body      CancelRequestData `required:"false"`
}

type CancelResponse struct {
	Body pipeline.CancelResult
}

type ProjectRequest struct {
	ProjectID string `path:"project_id" minLength:"1" doc:"Project identifier"`
}

type ProjectStatusData struct {
	ProjectID string                 `json:"project_id" doc:"Project identifier"`
	ActiveRun *pipeline.RunInfo      `json:"active_run,omitempty" doc:"Run in progress"`
	Server    *pipeline.ServerStatus `json:"server,omitempty" doc:"Live dev server"`
	Tracked   []tracker.Entry        `json:"tracked" doc:"Persisted server entries"`
}

type ProjectStatusResponse struct {
	Body ProjectStatusData
}

type ServerListData struct {
	Servers []pipeline.ServerStatus `json:"servers" doc:"Live dev servers"`
}

type ServerListResponse struct {
	Body ServerListData
}

// ConnectedEvent is the first message on every event stream.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z"`
}

// Update models
type UpdateCheckResponse struct {
	Body updater.UpdateInfo
}

type UpdateStatusResponse struct {
	Body updater.Status
}

type MessageData struct {
	Message string `json:"message" example:"Update applied, restarting" doc:"Status message"`
}

type MessageResponse struct {
	Body MessageData
}
