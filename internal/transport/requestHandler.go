package transport

import (
	"net/http"

	"github.com/ds124wfegd/smartblood/internal/service"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requests  service.RequestService
	lifecycle service.LifecycleService
	fanout    service.FanoutService
}

func NewRequestHandler(requests service.RequestService, lifecycle service.LifecycleService, fanout service.FanoutService) *RequestHandler {
	return &RequestHandler{
		requests:  requests,
		lifecycle: lifecycle,
		fanout:    fanout,
	}
}

func (h *RequestHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	request, err := h.requests.Submit(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

func (h *RequestHandler) SubmitAdmin(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	request, err := h.requests.SubmitAdmin(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

func (h *RequestHandler) List(c *gin.Context) {
	requests, err := h.requests.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, requests)
}

func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

func (h *RequestHandler) Transition(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	request, err := h.lifecycle.TransitionBloodRequest(c.Request.Context(), c.Param("id"), actorFrom(c).ProfileID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// FanOut runs fan-out now. Calling it for an already notified request
// returns an empty list.
func (h *RequestHandler) FanOut(c *gin.Context) {
	sent, err := h.fanout.FanOut(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":    c.Param("id"),
		"notifications": len(sent),
	})
}

func (h *RequestHandler) Flagged(c *gin.Context) {
	flagged, err := h.requests.Flagged(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, flagged)
}

func (h *RequestHandler) Stats(c *gin.Context) {
	stats, err := h.requests.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
