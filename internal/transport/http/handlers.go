package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

// Handler serves the one-shot REST operations.
type Handler struct {
	service *app.Service
	log     zerolog.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	c.JSON(statusFor(code), apiError{Code: code, Message: err.Error()})
}

func statusFor(code string) int {
	switch code {
	case "validation":
		return http.StatusUnprocessableEntity
	case "conflict", "invalid_transition":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type joinRequest struct {
	Name string `json:"name"`
}

func (h *Handler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrMalformedRequest)
		return
	}
	p, err := h.service.Join(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) Resume(c *gin.Context) {
	p, err := h.service.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Snapshot())
}

type answerRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	QuestionID    *int   `json:"questionId" binding:"required"`
	OptionIndex   *int   `json:"optionIndex" binding:"required"`
}

type answerResponse struct {
	Status      string `json:"status"`
	QuestionID  int    `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
}

func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrMalformedRequest)
		return
	}
	answer, err := h.service.SubmitAnswer(c.Request.Context(), req.ParticipantID, *req.QuestionID, *req.OptionIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answerResponse{
		Status:      "accepted",
		QuestionID:  answer.QuestionID,
		OptionIndex: answer.OptionIndex,
	})
}

type answerStatusResponse struct {
	Answered    bool `json:"answered"`
	OptionIndex *int `json:"optionIndex,omitempty"`
}

func (h *Handler) AnswerStatus(c *gin.Context) {
	questionID, err := strconv.Atoi(c.Param("question"))
	if err != nil {
		writeError(c, domain.ErrQuestionNotFound)
		return
	}
	option, err := h.service.AnswerStatus(c.Request.Context(), c.Param("participant"), questionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answerStatusResponse{Answered: option != nil, OptionIndex: option})
}

func (h *Handler) Scoreboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.service.Scoreboard()})
}

func (h *Handler) Start(c *gin.Context) {
	h.adminCommand(c, h.service.Start)
}

func (h *Handler) Next(c *gin.Context) {
	h.adminCommand(c, h.service.Next)
}

func (h *Handler) Prev(c *gin.Context) {
	h.adminCommand(c, h.service.Prev)
}

func (h *Handler) Reveal(c *gin.Context) {
	h.adminCommand(c, h.service.Reveal)
}

type extendRequest struct {
	ExtraSeconds int `json:"extraSeconds"`
}

func (h *Handler) Extend(c *gin.Context) {
	req := extendRequest{ExtraSeconds: 10}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, domain.ErrMalformedRequest)
			return
		}
	}
	snap, err := h.service.Extend(c.Request.Context(), req.ExtraSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) Reset(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Reset(c.Request.Context()))
}

func (h *Handler) Results(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"perQuestion": h.service.Results()})
}

func (h *Handler) Participants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": h.service.Participants()})
}

func (h *Handler) adminCommand(c *gin.Context, fn func(ctx context.Context) (domain.StateSnapshot, error)) {
	snap, err := fn(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
