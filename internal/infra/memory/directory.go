package memory

import (
	"context"
)

// StaticDirectory resolves role members from a fixed roster, normally loaded from config.
type StaticDirectory struct {
	placementOffice []string
	recruiters      map[string][]string
}

func NewStaticDirectory(placementOffice []string, recruiters map[string][]string) *StaticDirectory {
	r := make(map[string][]string, len(recruiters))
	for job, ids := range recruiters {
		r[job] = append([]string(nil), ids...)
	}
	return &StaticDirectory{placementOffice: append([]string(nil), placementOffice...), recruiters: r}
}

func (d *StaticDirectory) Recruiters(_ context.Context, jobID string) ([]string, error) {
	return append([]string(nil), d.recruiters[jobID]...), nil
}

func (d *StaticDirectory) PlacementOffice(_ context.Context) ([]string, error) {
	return append([]string(nil), d.placementOffice...), nil
}
