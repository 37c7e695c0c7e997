package service

import (
	"context"
	"errors"

	"github.com/zenostudy/zeno/internal/adapter/outbound/backend"
	"github.com/zenostudy/zeno/internal/domain/ratelimit"
	"github.com/zenostudy/zeno/internal/domain/sanitize"
	"github.com/zenostudy/zeno/internal/domain/secureform"
)

// GroupRequest is a gated study group creation.
type GroupRequest struct {
	SessionKey  string
	Token       string
	AccessToken string
	UserID      string
	Name        string
	Course      string
	Description string
}

// GroupResult is a created group with the rotated token.
type GroupResult struct {
	Group      backend.Group
	Submission secureform.Result
}

// CreateGroup creates a study group owned by the authenticated user. Ten
// creations per user per hour.
func (s *SubmissionService) CreateGroup(ctx context.Context, req GroupRequest) (GroupResult, error) {
	if req.UserID == "" || req.AccessToken == "" {
		return GroupResult{}, errors.New("authentication required")
	}

	name := sanitize.Subject(req.Name)
	course := sanitize.Course(req.Course)

	var problems []string
	if len(name) < 3 {
		problems = append(problems, "group name must be at least 3 characters")
	}
	if course == "" {
		problems = append(problems, "course is required")
	}
	if len(problems) > 0 {
		return GroupResult{}, &ValidationError{Problems: problems}
	}

	form := secureform.FormData{
		"name":        name,
		"course":      course,
		"description": sanitize.FreeText(req.Description, sanitize.FreeTextOptions{MaxLength: 2000}),
	}

	var created backend.Group
	result, err := s.submit(ctx, ratelimit.GroupCreation, req.SessionKey, req.UserID, req.Token, form, false,
		func(ctx context.Context, form secureform.FormData, _ string) error {
			var err error
			created, err = s.backend.CreateGroup(ctx, req.AccessToken, backend.Group{
				Name:        form.Get("name"),
				Course:      form.Get("course"),
				Description: form.Get("description"),
			})
			return err
		})
	if err != nil {
		return GroupResult{}, err
	}
	return GroupResult{Group: created, Submission: result}, nil
}

// ListGroups returns groups, optionally filtered by course. Read-only, so no
// gates apply.
func (s *SubmissionService) ListGroups(ctx context.Context, accessToken, course string) ([]backend.Group, error) {
	return s.backend.ListGroups(ctx, accessToken, sanitize.Course(course))
}

// GroupMembershipRequest is a gated join or leave.
type GroupMembershipRequest struct {
	SessionKey  string
	Token       string
	AccessToken string
	UserID      string
	GroupID     string
}

func (r GroupMembershipRequest) validate() error {
	if r.UserID == "" || r.AccessToken == "" {
		return errors.New("authentication required")
	}
	if r.GroupID == "" {
		return &ValidationError{Problems: []string{"group id is required"}}
	}
	return nil
}

// JoinGroup adds the authenticated user to a group. Membership changes
// share the profile update budget.
func (s *SubmissionService) JoinGroup(ctx context.Context, req GroupMembershipRequest) (secureform.Result, error) {
	if err := req.validate(); err != nil {
		return secureform.Result{}, err
	}
	form := secureform.FormData{"group_id": req.GroupID}
	return s.submit(ctx, ratelimit.ProfileUpdate, req.SessionKey, req.UserID, req.Token, form, false,
		func(ctx context.Context, form secureform.FormData, _ string) error {
			return s.backend.JoinGroup(ctx, req.AccessToken, form.Get("group_id"))
		})
}

// LeaveGroup removes the authenticated user from a group.
func (s *SubmissionService) LeaveGroup(ctx context.Context, req GroupMembershipRequest) (secureform.Result, error) {
	if err := req.validate(); err != nil {
		return secureform.Result{}, err
	}
	form := secureform.FormData{"group_id": req.GroupID}
	return s.submit(ctx, ratelimit.ProfileUpdate, req.SessionKey, req.UserID, req.Token, form, false,
		func(ctx context.Context, form secureform.FormData, _ string) error {
			return s.backend.LeaveGroup(ctx, req.AccessToken, form.Get("group_id"))
		})
}

// ProfileRequest is a gated profile update.
type ProfileRequest struct {
	SessionKey  string
	Token       string
	AccessToken string
	UserID      string
	Name        string
	Course      string
	YearLevel   string
	Bio         string
}

// UpdateProfile replaces the authenticated user's profile. Twenty updates per
// user per hour.
func (s *SubmissionService) UpdateProfile(ctx context.Context, req ProfileRequest) (secureform.Result, error) {
	if req.UserID == "" || req.AccessToken == "" {
		return secureform.Result{}, errors.New("authentication required")
	}

	name := sanitize.Name(req.Name)
	if name == "" {
		return secureform.Result{}, &ValidationError{Problems: []string{"name is required"}}
	}

	form := secureform.FormData{
		"name":       name,
		"course":     sanitize.Course(req.Course),
		"year_level": sanitize.YearLevel(req.YearLevel),
		"bio":        sanitize.FreeText(req.Bio, sanitize.FreeTextOptions{MaxLength: 1000}),
	}

	return s.submit(ctx, ratelimit.ProfileUpdate, req.SessionKey, req.UserID, req.Token, form, false,
		func(ctx context.Context, form secureform.FormData, _ string) error {
			return s.backend.UpdateProfile(ctx, req.AccessToken, backend.Profile{
				Name:      form.Get("name"),
				Course:    form.Get("course"),
				YearLevel: form.Get("year_level"),
				Bio:       form.Get("bio"),
			})
		})
}

// ReportRequest is a gated problem report. Fields carries the raw submission;
// it is sanitized field by field before anything else sees it.
type ReportRequest struct {
	SessionKey string
	Token      string
	Fields     map[string]string
}

// ReportProblem files a problem report. Five reports per address per hour,
// keyed on the reporter's email.
func (s *SubmissionService) ReportProblem(ctx context.Context, req ReportRequest) (secureform.Result, error) {
	report := sanitize.NewReportForm(req.Fields)
	if problems := report.Validate(); len(problems) > 0 {
		return secureform.Result{}, &ValidationError{Problems: problems}
	}

	form := secureform.FormData(report.Fields())
	result, err := s.submit(ctx, ratelimit.ProblemReport, req.SessionKey, report.Email, req.Token, form, false,
		func(ctx context.Context, form secureform.FormData, _ string) error {
			return s.backend.CreateProblemReport(ctx, form)
		})
	if err != nil {
		return secureform.Result{}, err
	}

	s.logger.Info("problem report filed", "report", report.Summary())
	return result, nil
}
