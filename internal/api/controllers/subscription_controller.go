package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"churchhub/internal/entitlement"
	"churchhub/internal/models/request_models"
	"churchhub/internal/models/response_models"
	"churchhub/internal/services"
	"churchhub/pkg/utils"
)

const IdempotencyHeader = "Idempotency-Key"

// SubscriptionController serves one subscription kind. The church and user
// route groups each get their own instance.
type SubscriptionController struct {
	subscriptionService services.SubscriptionService
}

func NewSubscriptionController(subscriptionService services.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{
		subscriptionService: subscriptionService,
	}
}

type SubscriptionControllers struct {
	Church *SubscriptionController
	User   *SubscriptionController
}

func NewSubscriptionControllers(svcs services.SubscriptionServices) *SubscriptionControllers {
	return &SubscriptionControllers{
		Church: NewSubscriptionController(svcs.Church),
		User:   NewSubscriptionController(svcs.User),
	}
}

// RegisterRoutes mounts the handlers on rg. Writes go through adminOnly.
func (s *SubscriptionController) RegisterRoutes(rg *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	rg.GET("", s.List)
	rg.GET("/:id", s.Get)
	rg.GET("/:id/payments", s.ListPayments)
	rg.GET("/:id/entitlements", s.Entitlements)

	rg.POST("", adminOnly, s.Create)
	rg.PATCH("/:id", adminOnly, s.Update)
	rg.POST("/:id/payments", adminOnly, s.RecordPayment)
	rg.POST("/:id/cancel", adminOnly, s.Cancel)
	rg.POST("/:id/renew", adminOnly, s.Renew)
	rg.PUT("/:id/usage/:limit", adminOnly, s.UpdateUsage)
	rg.POST("/:id/refresh", adminOnly, s.Refresh)
}

func (s *SubscriptionController) respond(c *gin.Context, rec *entitlement.Record, message string) {
	utils.RespondSuccess(c,
		response_models.NewSubscriptionResponse(rec, s.subscriptionService.Now(), s.subscriptionService.Location()),
		message)
}

// Create godoc
// @Summary Create a subscription
// @Description Starts a trial subscription for a church or a user on the given plan
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body request_models.CreateSubscriptionRequest true "Subscription payload"
// @Success 201 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions [post]
func (s *SubscriptionController) Create(c *gin.Context) {
	var req request_models.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	rec, err := s.subscriptionService.Create(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondCreated(c,
		response_models.NewSubscriptionResponse(rec, s.subscriptionService.Now(), s.subscriptionService.Location()),
		"Subscription created successfully")
}

// List godoc
// @Summary List subscriptions
// @Description status=active|expired|near_expiry use the live predicates, any other status filters the stored value
// @Tags Subscriptions
// @Produce json
// @Param status    query string false "active | expired | near_expiry | trial | canceled"
// @Param days      query int    false "near_expiry window in days (default 7)"
// @Param owner_id  query string false "church or user id"
// @Param plan      query string false "plan name"
// @Param page      query int    false "page, starting at 1"
// @Param page_size query int    false "page size, 1 to 100 (default 20)"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions [get]
func (s *SubscriptionController) List(c *gin.Context) {
	var q request_models.ListSubscriptionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	recs, err := s.subscriptionService.List(c.Request.Context(), q)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c,
		response_models.NewSubscriptionResponses(recs, s.subscriptionService.Now(), s.subscriptionService.Location()),
		"Subscriptions fetched successfully")
}

// Get godoc
// @Summary Get a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id} [get]
func (s *SubscriptionController) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rec, err := s.subscriptionService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	s.respond(c, rec, "Subscription fetched successfully")
}

// Update godoc
// @Summary Edit billing fields of a subscription
// @Description Switching plan resets limits and features to the new plan's defaults unless given in the same call
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body request_models.UpdateSubscriptionRequest true "Fields to change"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id} [patch]
func (s *SubscriptionController) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req request_models.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	rec, err := s.subscriptionService.Update(c.Request.Context(), id, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	s.respond(c, rec, "Subscription updated successfully")
}

// RecordPayment godoc
// @Summary Record a payment
// @Description Adds a payment to the subscription and the payment ledger. Replays with the same Idempotency-Key are rejected.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param Idempotency-Key header string false "Client generated key for safe retries"
// @Param request body request_models.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/payments [post]
func (s *SubscriptionController) RecordPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req request_models.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	rec, payment, err := s.subscriptionService.RecordPayment(c.Request.Context(), id, req, services.PaymentContext{
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
		RecordedBy:     c.GetString("user_id"),
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	loc := s.subscriptionService.Location()
	utils.RespondCreated(c, response_models.PaymentReceipt{
		Subscription: response_models.NewSubscriptionResponse(rec, s.subscriptionService.Now(), loc),
		Payment:      response_models.NewPaymentResponse(*payment, loc),
	}, "Payment recorded successfully")
}

// ListPayments godoc
// @Summary List payments of a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/payments [get]
func (s *SubscriptionController) ListPayments(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	payments, err := s.subscriptionService.ListPayments(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	loc := s.subscriptionService.Location()
	out := make([]response_models.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, response_models.NewPaymentResponse(p, loc))
	}
	utils.RespondSuccess(c, out, "Payments fetched successfully")
}

// Cancel godoc
// @Summary Cancel a subscription
// @Description Canceling an already canceled subscription keeps the first reason and timestamp
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body request_models.CancelSubscriptionRequest false "Cancel reason"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/cancel [post]
func (s *SubscriptionController) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req request_models.CancelSubscriptionRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	rec, err := s.subscriptionService.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	s.respond(c, rec, "Subscription canceled successfully")
}

// Renew godoc
// @Summary Renew a subscription
// @Description Extends the end date by whole months and reactivates the subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body request_models.RenewSubscriptionRequest true "Months to add"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/renew [post]
func (s *SubscriptionController) Renew(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req request_models.RenewSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	rec, err := s.subscriptionService.Renew(c.Request.Context(), id, req.Months)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	s.respond(c, rec, "Subscription renewed successfully")
}

// UpdateUsage godoc
// @Summary Set the current usage of a limit
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id    path string true "Subscription ID"
// @Param limit path string true "Limit key, e.g. users or small_groups_lead"
// @Param request body request_models.UpdateUsageRequest true "New usage count"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/usage/{limit} [put]
func (s *SubscriptionController) UpdateUsage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req request_models.UpdateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	rec, err := s.subscriptionService.UpdateUsage(c.Request.Context(), id, entitlement.LimitKey(c.Param("limit")), *req.Count)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	s.respond(c, rec, "Usage updated successfully")
}

// Refresh godoc
// @Summary Recompute derived fields
// @Description Runs the status and balance calculation now and stores the result if anything changed
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/refresh [post]
func (s *SubscriptionController) Refresh(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rec, err := s.subscriptionService.Refresh(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	s.respond(c, rec, "Subscription refreshed successfully")
}

// Entitlements godoc
// @Summary Evaluate entitlements
// @Description Expiry, usage and feature checks for one subscription. feature and limit narrow the answer to a single check.
// @Tags Subscriptions
// @Produce json
// @Param id      path  string true  "Subscription ID"
// @Param feature query string false "feature to check"
// @Param limit   query string false "limit key to check"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /church-subscriptions/{id}/entitlements [get]
func (s *SubscriptionController) Entitlements(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rec, err := s.subscriptionService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	out := response_models.EntitlementsResponse{
		SubscriptionID: rec.ID,
		Kind:           string(rec.Kind),
		Plan:           string(rec.Plan),
		Status:         string(rec.Status),
		Snapshot:       rec.Snapshot(s.subscriptionService.Now()),
	}
	if feature := c.Query("feature"); feature != "" {
		has := rec.HasFeature(feature)
		out.HasFeature = &has
	}
	if limit := c.Query("limit"); limit != "" {
		key := entitlement.LimitKey(limit)
		can, over := rec.CanPerform(key), rec.IsOverLimit(key)
		out.CanPerform = &can
		out.IsOver = &over
	}

	utils.RespondSuccess(c, out, "Entitlements evaluated successfully")
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid subscription id")
		return uuid.Nil, false
	}
	return id, true
}
