package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/toolhub/internal/onboarding"
)

// multipartOverhead leaves room for the text fields next to the avatar.
const multipartOverhead = 1 << 20

type onboardingRequest struct {
	Nickname    string `form:"nickname" json:"nickname"`
	Name        string `form:"name" json:"name"`
	AcceptTerms bool   `form:"accept_terms" json:"accept_terms"`
}

type onboardingErrorResponse struct {
	Error    string                `json:"error"`
	Message  string                `json:"message"`
	Redirect string                `json:"redirect,omitempty"`
	Retries  int                   `json:"retries"`
	Progress []onboarding.Progress `json:"progress"`
}

// RunOnboarding accepts JSON or multipart (with an optional "avatar" file).
// With Accept: text/event-stream the progress is streamed as it happens.
func (s *Server) RunOnboarding(c *gin.Context) {
	maxBytes := s.cfg.Onboarding.MaxAvatarBytes
	if maxBytes <= 0 {
		maxBytes = onboarding.DefaultMaxAvatarBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	var req onboardingRequest
	if err := c.ShouldBind(&req); err != nil {
		if isBodyTooLarge(err) {
			s.writeOnboardingError(c, onboarding.ErrFileTooLarge, &onboarding.Result{})
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	input := onboarding.Input{
		Session:     currentSession(c),
		Nickname:    req.Nickname,
		Name:        req.Name,
		AcceptTerms: req.AcceptTerms,
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("avatar")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			AbortWithError(c, invalidRequestError())
			return
		default:
			avatar, file, err := openAvatar(header)
			if err != nil {
				AbortWithError(c, invalidRequestError())
				return
			}
			defer file.Close()
			input.Avatar = avatar
		}
	}

	if wantsEventStream(c) {
		s.streamOnboarding(c, input)
		return
	}

	result, err := s.onboarding.Run(c.Request.Context(), input, nil)
	if err != nil {
		s.writeOnboardingError(c, err, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) streamOnboarding(c *gin.Context, input onboarding.Input) {
	stream, ok := openEventStream(c)
	if !ok {
		return
	}

	result, err := s.onboarding.Run(c.Request.Context(), input, func(p onboarding.Progress) {
		_ = stream.send("progress", p)
	})
	if err != nil {
		_ = stream.send("error", onboardingError(err, result))
		return
	}
	_ = stream.send("result", result)
}

func (s *Server) writeOnboardingError(c *gin.Context, err error, result *onboarding.Result) {
	status, _ := mapError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, onboardingError(err, result))
}

func onboardingError(err error, result *onboarding.Result) onboardingErrorResponse {
	_, payload := mapError(err)
	out := onboardingErrorResponse{
		Error:    onboarding.ErrorCode(err),
		Message:  payload.Message,
		Progress: []onboarding.Progress{},
	}
	if len(payload.Errors) > 0 {
		out.Message = payload.Errors[0].Message
	}
	if result != nil {
		out.Redirect = result.Redirect
		out.Retries = result.Retries
		if result.Progress != nil {
			out.Progress = result.Progress
		}
	}
	return out
}

func openAvatar(header *multipart.FileHeader) (*onboarding.Avatar, multipart.File, error) {
	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &onboarding.Avatar{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, file, nil
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}
