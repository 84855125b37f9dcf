package server

import (
	"net/http"
	"strings"

	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

type statusRequest struct {
	UserID  string `json:"userId"`
	IDToken string `json:"idToken"`
}

type statusUpdateRequest struct {
	UserID               string `json:"userId"`
	IDToken              string `json:"idToken"`
	PayPalSubscriptionID string `json:"paypalSubscriptionId"`
	Action               string `json:"action"`
}

// authenticateCaller exchanges the id token for a verified identity and
// requires it to match the target user.
func (s *Server) authenticateCaller(c *gin.Context, userID, idToken string) error {
	verified, err := s.tokens.VerifyIDToken(c.Request.Context(), idToken)
	if err != nil {
		return err
	}
	if verified != userID {
		return ErrForbidden
	}
	return nil
}

func (s *Server) GetSubscriptionStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		AbortWithError(c, subscriptiondomain.ErrInvalidUserID)
		return
	}

	if err := s.authenticateCaller(c, req.UserID, req.IDToken); err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.subscriptionSvc.GetStatus(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) UpdateSubscriptionStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		AbortWithError(c, subscriptiondomain.ErrInvalidUserID)
		return
	}

	if err := s.authenticateCaller(c, req.UserID, req.IDToken); err != nil {
		AbortWithError(c, err)
		return
	}

	action := subscriptiondomain.OverrideAction(strings.TrimSpace(req.Action))
	err := s.subscriptionSvc.Override(c.Request.Context(), req.UserID, req.PayPalSubscriptionID, action)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
