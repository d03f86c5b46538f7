package transport

import (
	"net/http"

	"github.com/ds124wfegd/smartblood/internal/service"

	"github.com/gin-gonic/gin"
)

type DonorRequestHandler struct {
	donorRequests service.DonorRequestService
	lifecycle     service.LifecycleService
}

func NewDonorRequestHandler(donorRequests service.DonorRequestService, lifecycle service.LifecycleService) *DonorRequestHandler {
	return &DonorRequestHandler{donorRequests: donorRequests, lifecycle: lifecycle}
}

// CreateDonorRequest is the body of a direct request to a donor
type CreateDonorRequest struct {
	ToID string `json:"to_id" binding:"required"`
}

func (h *DonorRequestHandler) Create(c *gin.Context) {
	var req CreateDonorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	request, err := h.donorRequests.Create(c.Request.Context(), actorFrom(c), req.ToID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

func (h *DonorRequestHandler) Incoming(c *gin.Context) {
	requests, err := h.donorRequests.Incoming(c.Request.Context(), actorFrom(c).ProfileID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, nonNil(requests))
}

// Sent also yields the ids of donors already asked, so clients can disable
// the request button for them.
func (h *DonorRequestHandler) Sent(c *gin.Context) {
	requests, err := h.donorRequests.Sent(c.Request.Context(), actorFrom(c).ProfileID)
	if err != nil {
		respondError(c, err)
		return
	}

	requested := make([]string, 0, len(requests))
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if !seen[r.ToID] {
			seen[r.ToID] = true
			requested = append(requested, r.ToID)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"requests":         nonNil(requests),
		"requested_donors": requested,
	})
}

func (h *DonorRequestHandler) Transition(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	request, err := h.lifecycle.TransitionDonorRequest(c.Request.Context(), c.Param("id"), actorFrom(c).ProfileID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
