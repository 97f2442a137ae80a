package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental-bot/internal/conversation"
	"github.com/iliyamo/vehicle-rental-bot/internal/message"
	"github.com/iliyamo/vehicle-rental-bot/internal/middleware"
)

// Conversation handles one inbound chat event.  *conversation.Controller
// implements it.
type Conversation interface {
	Handle(ctx context.Context, contactID string, ev conversation.Event) ([]message.Message, error)
}

// ChannelHandler receives events from the messaging channel adapter and
// answers with the messages to send back to the customer.
type ChannelHandler struct {
	Conv Conversation
	Log  *zap.Logger
}

func NewChannelHandler(conv Conversation, log *zap.Logger) *ChannelHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChannelHandler{Conv: conv, Log: log}
}

type channelEventReq struct {
	ContactID   string  `json:"contact_id" validate:"omitempty,max=64"`
	Kind        string  `json:"kind" validate:"required,oneof=text selection location document"`
	Text        string  `json:"text" validate:"max=2000"`
	Name        string  `json:"name" validate:"max=120"`
	Address     string  `json:"address" validate:"max=500"`
	Latitude    float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"gte=-180,lte=180"`
	DocumentRef string  `json:"document_ref" validate:"max=500"`
}

type channelResp struct {
	ContactID string            `json:"contact_id"`
	Messages  []message.Message `json:"messages"`
}

// Event handles POST /v1/channel/events.  The contact id comes from the
// body or, when absent, from the X-Contact-ID header the rate limiter
// also keys on.
func (h *ChannelHandler) Event(c echo.Context) error {
	var req channelEventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event"})
	}
	contactID := strings.TrimSpace(req.ContactID)
	if contactID == "" {
		contactID = strings.TrimSpace(c.Request().Header.Get(middleware.ContactHeader))
	}
	if contactID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "contact_id required"})
	}

	msgs, err := h.Conv.Handle(c.Request().Context(), contactID, conversation.Event{
		Kind:        conversation.EventKind(req.Kind),
		Text:        req.Text,
		Name:        req.Name,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		DocumentRef: req.DocumentRef,
	})
	if err != nil {
		h.Log.Error("channel event failed", zap.String("contact_id", contactID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "temporarily unavailable"})
	}
	return c.JSON(http.StatusOK, channelResp{ContactID: contactID, Messages: msgs})
}
