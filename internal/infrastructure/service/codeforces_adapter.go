// Package service adapts infrastructure clients to the interfaces the
// application layer depends on.
package service

import (
	"context"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/external/codeforces"
)

// CodeforcesFetcher is the subset of codeforces.Client the adapter uses.
type CodeforcesFetcher interface {
	FetchProfile(ctx context.Context, handle string) (*codeforces.ProfileDTO, error)
	FetchSubmissions(ctx context.Context, handle string) ([]codeforces.SubmissionDTO, error)
	FetchRatingHistory(ctx context.Context, handle string) ([]codeforces.RatingChangeDTO, error)
}

// CodeforcesAdapter adapts the codeforces.Client to command.CodeforcesClient.
type CodeforcesAdapter struct {
	client CodeforcesFetcher
	mapper *codeforces.Mapper
}

var _ command.CodeforcesClient = (*CodeforcesAdapter)(nil)

func NewCodeforcesAdapter(client CodeforcesFetcher) *CodeforcesAdapter {
	return &CodeforcesAdapter{client: client, mapper: codeforces.NewMapper()}
}

func (a *CodeforcesAdapter) FetchProfile(ctx context.Context, handle string) (*command.UpstreamProfile, error) {
	dto, err := a.client.FetchProfile(ctx, handle)
	if err != nil {
		return nil, err
	}
	current, maxRating := a.mapper.Ratings(dto)
	return &command.UpstreamProfile{Rating: current, MaxRating: maxRating}, nil
}

func (a *CodeforcesAdapter) FetchSubmissions(ctx context.Context, handle string) ([]activity.Submission, error) {
	dtos, err := a.client.FetchSubmissions(ctx, handle)
	if err != nil {
		return nil, err
	}
	return a.mapper.Submissions(dtos), nil
}

func (a *CodeforcesAdapter) FetchRatingHistory(ctx context.Context, handle string) ([]activity.ContestParticipation, error) {
	dtos, err := a.client.FetchRatingHistory(ctx, handle)
	if err != nil {
		return nil, err
	}
	return a.mapper.Contests(dtos), nil
}
