package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KFCxMcDonalds/hashwheel"
	"github.com/KFCxMcDonalds/hashwheel/jobs"
)

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

type createTaskRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Name    string `json:"name"`
	DelayMS int64  `json:"delay_ms"` // negative delays are rejected by the wheel
	WorkMS  int64  `json:"work_ms" binding:"gte=0"`
	Message string `json:"message"`
}

type createTaskResponse struct {
	ID string `json:"id"`
}

type cancelTaskResponse struct {
	Cancelled bool `json:"cancelled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func abortWithError(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: err.Error()})
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if req.DelayMS > maxMillis || req.WorkMS > maxMillis {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("delay_ms and work_ms must not exceed %d", maxMillis))
		return
	}
	payload, err := s.factory.Build(jobs.Spec{
		Kind:    req.Kind,
		Message: req.Message,
		Work:    time.Duration(req.WorkMS) * time.Millisecond,
	})
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var opts []hashwheel.ScheduleOption
	if req.Name != "" {
		opts = append(opts, hashwheel.WithName(req.Name))
	}
	id, err := s.sched.Schedule(payload, time.Duration(req.DelayMS)*time.Millisecond, opts...)
	switch {
	case errors.Is(err, hashwheel.ErrNegativeDelay):
		abortWithError(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, hashwheel.ErrClosed):
		abortWithError(c, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, createTaskResponse{ID: id})
}

func (s *Server) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.ListActiveTasks())
}

func (s *Server) getTask(c *gin.Context) {
	snap, ok := s.sched.GetTask(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// cancelTask answers 200 whether or not anything was cancelled.
func (s *Server) cancelTask(c *gin.Context) {
	c.JSON(http.StatusOK, cancelTaskResponse{Cancelled: s.sched.Cancel(c.Param("id"))})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.Stats())
}
