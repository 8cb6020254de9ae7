package server

import "github.com/briefops/briefer/internal/brief"

// HTTPError is the JSON error envelope every handler returns.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// GenerateBriefRequest is one research request. Depth defaults to
// moderate; is_follow_up pulls the user's prior briefs into the run.
type GenerateBriefRequest struct {
	Topic             string `json:"topic"`
	Depth             string `json:"depth"`
	IsFollowUp        bool   `json:"is_follow_up"`
	AdditionalContext string `json:"additional_context"`
}

type GenerateBriefResponse struct {
	ID    string           `json:"id"`
	Brief brief.FinalBrief `json:"brief"`
}

type TopicCreateRequest struct {
	Name         string `json:"name"`
	Depth        string `json:"depth"`
	ScheduleCron string `json:"schedule_cron"`
}
