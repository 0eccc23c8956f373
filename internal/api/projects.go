package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/devnode/internal/api/models"
	"github.com/smazurov/devnode/internal/pipeline"
	"github.com/smazurov/devnode/internal/tracker"
	"github.com/smazurov/devnode/internal/vcs"
)

// cloneModes maps the wire mode names onto pipeline modes.
var cloneModes = map[string]pipeline.Mode{
	"":          pipeline.ModeCloneSubfolder,
	"subfolder": pipeline.ModeCloneSubfolder,
	"into":      pipeline.ModeCloneInto,
}

func identity(d models.IdentityData) vcs.Identity {
	return vcs.Identity{Name: d.Name, Email: d.Email}
}

func (s *Server) registerProjectRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "clone-project",
		Method:        http.MethodPost,
		Path:          "/api/projects/{project_id}/clone",
		Summary:       "Clone Project",
		Description:   "Clone a repository and start its install, build and dev server pipeline",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusAccepted,
		Security:      withAuth(),
		Errors:        []int{400, 401, 409},
	}, func(ctx context.Context, input *models.CloneRequest) (*models.RunResponse, error) {
		mode, ok := cloneModes[input.Body.Mode]
		if !ok {
			return nil, huma.Error400BadRequest("unknown clone mode " + input.Body.Mode)
		}
		run, err := s.pipeline.Create(ctx, pipeline.CreateRequest{
			ProjectID:    input.ProjectID,
			RepoURL:      input.Body.RepoURL,
			Mode:         mode,
			Target:       input.Body.Target,
			FolderName:   input.Body.FolderName,
			Branch:       input.Body.Branch,
			CreateBranch: input.Body.CreateBranch,
			Identity:     identity(input.Body.Identity),
		})
		if err != nil {
			return nil, pipelineError(err)
		}
		return &models.RunResponse{Body: run.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "open-project",
		Method:        http.MethodPost,
		Path:          "/api/projects/{project_id}/open",
		Summary:       "Open Project",
		Description:   "Run the pipeline on an existing checkout. With reopen, the project's previous processes are stopped first.",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusAccepted,
		Security:      withAuth(),
		Errors:        []int{400, 401, 409},
	}, func(ctx context.Context, input *models.OpenRequest) (*models.RunResponse, error) {
		req := pipeline.OpenRequest{
			ProjectID: input.ProjectID,
			Dir:       input.Body.Dir,
			Identity:  identity(input.Body.Identity),
		}
		open := s.pipeline.Open
		if input.Body.Reopen {
			open = s.pipeline.Reopen
		}
		run, err := open(ctx, req)
		if err != nil {
			return nil, pipelineError(err)
		}
		return &models.RunResponse{Body: run.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-project",
		Method:      http.MethodPost,
		Path:        "/api/projects/{project_id}/cancel",
		Summary:     "Cancel Project",
		Description: "Cancel the active run, stop the project's processes and clean up its workspace",
		Tags:        []string{"projects"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *models.CancelRequest) (*models.CancelResponse, error) {
		res, err := s.pipeline.Cancel(ctx, pipeline.CancelRequest{
			ProjectID:      input.ProjectID,
			WorkspacePath:  input.Body.WorkspacePath,
			RepoFolderName: input.Body.RepoFolderName,
			DeleteFiles:    input.Body.DeleteFiles,
		})
		if err != nil {
			return nil, pipelineError(err)
		}
		return &models.CancelResponse{Body: res}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/api/projects/{project_id}",
		Summary:     "Get Project",
		Description: "Active run, live server and tracked entries of a project",
		Tags:        []string{"projects"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.ProjectRequest) (*models.ProjectStatusResponse, error) {
		data := models.ProjectStatusData{
			ProjectID: input.ProjectID,
			Tracked:   []tracker.Entry{},
		}
		if run, ok := s.pipeline.ActiveRun(input.ProjectID); ok {
			info := run.Info()
			data.ActiveRun = &info
		}
		if st, ok := s.pipeline.ServerStatus(input.ProjectID); ok {
			data.Server = &st
		}
		if s.options.Tracked != nil {
			data.Tracked = append(data.Tracked, s.options.Tracked.ForProject(input.ProjectID)...)
		}
		if data.ActiveRun == nil && data.Server == nil && len(data.Tracked) == 0 {
			return nil, huma.Error404NotFound("project " + input.ProjectID + " has no run or processes")
		}
		return &models.ProjectStatusResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-servers",
		Method:      http.MethodGet,
		Path:        "/api/servers",
		Summary:     "List Servers",
		Description: "Live dev servers with readiness and detected URL",
		Tags:        []string{"projects"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ServerListResponse, error) {
		servers := s.pipeline.Servers()
		if servers == nil {
			servers = []pipeline.ServerStatus{}
		}
		return &models.ServerListResponse{Body: models.ServerListData{Servers: servers}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/api/runs",
		Summary:     "List Runs",
		Description: "Active runs followed by recently finished ones",
		Tags:        []string{"runs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.RunListResponse, error) {
		runs := s.pipeline.Runs()
		if runs == nil {
			runs = []pipeline.RunInfo{}
		}
		return &models.RunListResponse{Body: models.RunListData{Runs: runs}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/api/runs/{run_id}",
		Summary:     "Get Run",
		Description: "State, steps and outcome of a pipeline run",
		Tags:        []string{"runs"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.RunRequest) (*models.RunResponse, error) {
		run, ok := s.pipeline.FindRun(input.RunID)
		if !ok {
			return nil, huma.Error404NotFound("run " + input.RunID + " not found")
		}
		return &models.RunResponse{Body: run.Info()}, nil
	})
}
