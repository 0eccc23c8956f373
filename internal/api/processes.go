package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/devnode/internal/api/models"
	"github.com/smazurov/devnode/internal/tracker"
)

func (s *Server) registerProcessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "List Processes",
		Description: "List child processes owned by this session",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ProcessListResponse, error) {
		list := []models.ProcessInfo{}
		if s.options.Processes != nil {
			for _, p := range s.options.Processes.List() {
				list = append(list, models.ProcessInfo{
					Key:       p.Key,
					PID:       p.PID,
					Command:   p.Command,
					Args:      p.Args,
					Dir:       p.Dir,
					StartedAt: p.StartedAt,
				})
			}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
		return &models.ProcessListResponse{
			Body: models.ProcessListData{Processes: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-tracked-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes/tracked",
		Summary:     "List Tracked Servers",
		Description: "List server processes recorded in the tracker file, including those left by earlier sessions",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.TrackedListResponse, error) {
		entries := []tracker.Entry{}
		if s.options.Tracked != nil {
			for _, e := range s.options.Tracked.All() {
				entries = append(entries, e)
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].PID < entries[j].PID })
		return &models.TrackedListResponse{
			Body: models.TrackedListData{Entries: entries, Count: len(entries)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reap-orphans",
		Method:      http.MethodPost,
		Path:        "/api/processes/reap",
		Summary:     "Reap Orphans",
		Description: "Prune stale tracker entries and optionally stop live servers left by a previous session",
		Tags:        []string{"processes"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.ReapRequest) (*models.ReapResponse, error) {
		res := s.pipeline.ReapOrphans(s.options.Probe, input.Body.Terminate)
		return &models.ReapResponse{Body: res}, nil
	})
}
