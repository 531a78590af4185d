package codeforces

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
)

func TestMapper_Submissions(t *testing.T) {
	var dtos []SubmissionDTO
	err := json.Unmarshal([]byte(`[
		{"id":42,"contestId":1850,"creationTimeSeconds":1700000000,
		 "problem":{"contestId":1850,"index":"C","name":"Word on the Paper","rating":800,"tags":["strings"]},
		 "verdict":"OK","programmingLanguage":"Python 3"}
	]`), &dtos)
	require.NoError(t, err)

	subs := NewMapper().Submissions(dtos)
	require.Len(t, subs, 1)

	s := subs[0]
	assert.Equal(t, int64(42), s.ExternalID)
	assert.Equal(t, 1850, s.ContestID)
	assert.Equal(t, "Word on the Paper", s.Problem.Name)
	assert.Equal(t, []string{"strings"}, s.Problem.Tags)
	assert.Equal(t, activity.VerdictAccepted, s.Verdict)
	assert.Equal(t, int64(1700000000000), s.SubmittedAt.UnixMilli())
	assert.Equal(t, time.UTC, s.SubmittedAt.Location())
}

func TestMapper_SubmissionsNilTagsBecomeEmpty(t *testing.T) {
	subs := NewMapper().Submissions([]SubmissionDTO{{ID: 1, Problem: ProblemDTO{Name: "A"}}})
	require.Len(t, subs, 1)
	assert.NotNil(t, subs[0].Problem.Tags)
	assert.Empty(t, subs[0].Problem.Tags)
}

func TestMapper_ContestsComputeRatingChange(t *testing.T) {
	contests := NewMapper().Contests([]RatingChangeDTO{
		{ContestID: 1, ContestName: "Div. 2", Rank: 120, OldRating: 1500, NewRating: 1432, RatingUpdateTimeSeconds: 1600000000},
		{ContestID: 2, ContestName: "Div. 3", Rank: 5, OldRating: 1432, NewRating: 1601, RatingUpdateTimeSeconds: 1600100000},
	})
	require.Len(t, contests, 2)
	assert.Equal(t, -68, contests[0].RatingChange)
	assert.Equal(t, 169, contests[1].RatingChange)
	assert.Equal(t, int64(1600100000000), contests[1].OccurredAt.UnixMilli())
}

func TestMapper_IsDeterministic(t *testing.T) {
	dtos := []SubmissionDTO{{ID: 7, ContestID: 3, CreationTimeSeconds: 1, Problem: ProblemDTO{Name: "X", Tags: []string{"dp"}}, Verdict: "OK"}}
	m := NewMapper()
	assert.Equal(t, m.Submissions(dtos), m.Submissions(dtos))
}
