package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resonatefm/resonate/internal/services"
	appErrors "github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/response"
)

// EmailQueueHandler exposes operator endpoints for the outbound email queue.
type EmailQueueHandler struct {
	emails    *services.EmailService
	processor *services.EmailProcessor
}

// NewEmailQueueHandler configures an email queue handler.
func NewEmailQueueHandler(emails *services.EmailService, processor *services.EmailProcessor) *EmailQueueHandler {
	return &EmailQueueHandler{emails: emails, processor: processor}
}

// Stats reports queue composition by status.
func (h *EmailQueueHandler) Stats(c *gin.Context) {
	stats, err := h.emails.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// Status reports the processor runtime state.
func (h *EmailQueueHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, h.processor.Status())
}

// Health reports transport and processor health.
func (h *EmailQueueHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, h.processor.HealthCheck(requestContext(c)))
}

// ProcessNow triggers an out-of-band queue pass.
func (h *EmailQueueHandler) ProcessNow(c *gin.Context) {
	result, err := h.processor.ProcessNow(requestContext(c))
	if err != nil {
		if errors.Is(err, services.ErrPassInProgress) {
			response.Error(c, appErrors.New("email.pass_in_progress", "A queue pass is already running", http.StatusConflict))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
