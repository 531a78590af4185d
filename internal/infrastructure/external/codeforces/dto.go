// Package codeforces implements the Codeforces REST API client.
// It fetches user profiles, submissions and rating history, and maps every
// failure to a typed *Error.
package codeforces

import "encoding/json"

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPER
// ══════════════════════════════════════════════════════════════════════════════

// Response status values.
const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// envelope is the wrapper around every Codeforces API response.
type envelope struct {
	// Status is "OK" or "FAILED".
	Status string `json:"status"`

	// Comment explains a FAILED status.
	Comment string `json:"comment,omitempty"`

	// Result is decoded by the caller into the endpoint's payload type.
	Result json.RawMessage `json:"result,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// USER DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ProfileDTO is one element of the user.info result.
type ProfileDTO struct {
	Handle string `json:"handle"`

	// Rating is absent for unrated users.
	Rating int `json:"rating,omitempty"`

	// MaxRating is absent for unrated users.
	MaxRating int `json:"maxRating,omitempty"`

	Rank    string `json:"rank,omitempty"`
	MaxRank string `json:"maxRank,omitempty"`

	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`

	RegistrationTimeSeconds int64 `json:"registrationTimeSeconds,omitempty"`
}

// ProblemDTO describes a problem inside a submission.
type ProblemDTO struct {
	ContestID int    `json:"contestId,omitempty"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`

	// Rating is the difficulty; absent for unrated problems.
	Rating int `json:"rating,omitempty"`

	Tags []string `json:"tags"`
}

// SubmissionDTO is one element of the user.status result.
type SubmissionDTO struct {
	ID int64 `json:"id"`

	// ContestID is absent for some gym and acmsguru submissions.
	ContestID int `json:"contestId,omitempty"`

	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	Problem             ProblemDTO `json:"problem"`

	// Verdict is absent while the submission is still being judged.
	Verdict string `json:"verdict,omitempty"`

	ProgrammingLanguage string `json:"programmingLanguage"`
}

// RatingChangeDTO is one element of the user.rating result.
type RatingChangeDTO struct {
	ContestID               int    `json:"contestId"`
	ContestName             string `json:"contestName"`
	Handle                  string `json:"handle"`
	Rank                    int    `json:"rank"`
	RatingUpdateTimeSeconds int64  `json:"ratingUpdateTimeSeconds"`
	OldRating               int    `json:"oldRating"`
	NewRating               int    `json:"newRating"`
}
