package api

import (
	"net/http"
	"strconv"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"
	"commerce-core/internal/service"
	"commerce-core/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	carts     *service.CartService
	checkout  *service.CheckoutService
	workflow  *service.WorkflowService
	inventory *service.InventoryService
	payments  *service.PaymentService
	shipments *service.ShipmentService
}

// NewHandler creates a new HTTP handler
func NewHandler(carts *service.CartService, checkout *service.CheckoutService, workflow *service.WorkflowService, inventory *service.InventoryService, payments *service.PaymentService, shipments *service.ShipmentService) *Handler {
	return &Handler{
		carts:     carts,
		checkout:  checkout,
		workflow:  workflow,
		inventory: inventory,
		payments:  payments,
		shipments: shipments,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/payment", h.paymentWebhook)
		webhooks.POST("/shipment", h.shipmentWebhook)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/users/:user_id/cart", h.getCart)
		v1.POST("/users/:user_id/cart/items", h.addCartItem)
		v1.PUT("/users/:user_id/cart/items/:item_id", h.updateCartItem)
		v1.DELETE("/users/:user_id/cart/items/:item_id", h.removeCartItem)
		v1.DELETE("/users/:user_id/cart/items", h.clearCart)

		v1.POST("/users/:user_id/checkout", h.checkoutCart)
		v1.GET("/users/:user_id/orders", h.listOrders)

		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/history", h.getOrderHistory)
		v1.GET("/orders/:id/transitions", h.getAllowedTransitions)
		v1.POST("/orders/:id/status", h.changeOrderStatus)
		v1.POST("/orders/:id/notes", h.attachOrderNotes)
		v1.POST("/orders/:id/confirm", h.confirmOrder)
		v1.POST("/orders/:id/ready-to-ship", h.markReadyToShip)
		v1.POST("/orders/:id/complete", h.completeOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/hold", h.holdOrder)
		v1.POST("/orders/:id/resume", h.resumeOrder)

		v1.POST("/orders/:id/payments", h.createPayment)
		v1.GET("/orders/:id/payments", h.listPayments)
		v1.GET("/payments/:id", h.getPayment)

		v1.POST("/orders/:id/shipments", h.createShipment)
		v1.GET("/shipments/:id", h.getShipment)
		v1.PATCH("/shipments/:id/status", h.updateShipmentStatus)

		v1.GET("/inventory/:variant_id/available", h.getAvailable)
		v1.POST("/inventory/reservations", h.reserveStock)
		v1.GET("/inventory/reservations/:reservation_id", h.getReservation)
		v1.POST("/inventory/reservations/:reservation_id/release", h.releaseStock)
		v1.POST("/inventory/reservations/:reservation_id/commit", h.commitStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps business error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var status int
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindConcurrency:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// --- cart ---

func (h *Handler) getCart(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreateCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	items, err := h.carts.ListItems(c.Request.Context(), cart.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart, "items": items})
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.carts.GetOrCreateCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.carts.AddItem(c.Request.Context(), cart.ID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	if _, ok := pathID(c, "user_id"); !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.carts.UpdateItem(c.Request.Context(), itemID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreateCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	removed, err := h.carts.RemoveItem(c.Request.Context(), cart.ID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCart(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreateCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.carts.ClearCart(c.Request.Context(), cart.ID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// --- checkout and orders ---

func (h *Handler) checkoutCart(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, items, err := h.checkout.Checkout(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order, "items": items})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.checkout.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) listOrders(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	orders, err := h.checkout.ListOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrderHistory(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	history, err := h.workflow.StatusHistory(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) getAllowedTransitions(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	transitions, err := h.workflow.AllowedTransitions(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed_transitions": transitions})
}

// --- workflow commands ---

type changeStatusRequest struct {
	NewStatus string `json:"new_status" binding:"required"`
	Reason    string `json:"reason"`
	ActorID   *int64 `json:"actor_id"`
	ActorRole string `json:"actor_role" binding:"required"`
}

func (h *Handler) changeOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	newStatus, err := models.ParseOrderStatus(req.NewStatus)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workflow.ChangeStatus(c.Request.Context(), orderID, newStatus, req.Reason, req.ActorID, req.ActorRole); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": newStatus})
}

type attachNotesRequest struct {
	Notes string `json:"notes" binding:"required"`
}

func (h *Handler) attachOrderNotes(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req attachNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.AttachNotes(c.Request.Context(), orderID, req.Notes); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notes": req.Notes})
}

type actorRequest struct {
	ActorID int64  `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
	Notes   string `json:"notes"`
}

func (h *Handler) confirmOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.ConfirmOrder(c.Request.Context(), orderID, req.ActorID, req.Notes); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.StatusConfirmed})
}

func (h *Handler) markReadyToShip(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.MarkReadyToShip(c.Request.Context(), orderID, req.ActorID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.StatusReadyToShip})
}

func (h *Handler) completeOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.CompleteOrder(c.Request.Context(), orderID, req.ActorID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.StatusCompleted})
}

type cancelOrderRequest struct {
	Reason    string `json:"reason" binding:"required"`
	ActorID   *int64 `json:"actor_id"`
	ActorRole string `json:"actor_role" binding:"required"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.CancelOrder(c.Request.Context(), orderID, req.Reason, req.ActorID, req.ActorRole); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.StatusCancelled})
}

func (h *Handler) holdOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.PutOrderOnHold(c.Request.Context(), orderID, req.Reason, req.ActorID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.StatusOnHold})
}

func (h *Handler) resumeOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.workflow.ResumeOrderFromHold(c.Request.Context(), orderID, req.Reason, req.ActorID); err != nil {
		respondError(c, err)
		return
	}

	order, _, err := h.checkout.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": order.Status})
}

// --- payments ---

type createPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) createPayment(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	payment, err := h.payments.CreatePayment(c.Request.Context(), orderID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

func (h *Handler) listPayments(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// paymentWebhook receives gateway callbacks over HTTP. The same
// payload also arrives on the payment events topic; both paths are
// idempotent.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var event models.PaymentWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload", "details": err.Error()})
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), &event); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// --- shipments ---

type createShipmentRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required"`
	Carrier        string `json:"carrier" binding:"required"`
	MerchantID     int64  `json:"merchant_id" binding:"required"`
}

func (h *Handler) createShipment(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req createShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	shipment, err := h.shipments.CreateForOrder(c.Request.Context(), orderID, req.TrackingNumber, req.Carrier, req.MerchantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, shipment)
}

func (h *Handler) getShipment(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	shipment, err := h.shipments.GetShipment(c.Request.Context(), shipmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, shipment)
}

type updateShipmentRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) updateShipmentStatus(c *gin.Context) {
	shipmentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.shipments.UpdateStatus(c.Request.Context(), shipmentID, req.Status, req.Notes); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

// shipmentWebhook receives carrier callbacks over HTTP.
func (h *Handler) shipmentWebhook(c *gin.Context) {
	var event models.ShipmentStatusEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload", "details": err.Error()})
		return
	}

	if err := h.shipments.UpdateStatus(c.Request.Context(), event.ShipmentID, event.NewStatus, event.Notes); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// --- inventory ---

func (h *Handler) getAvailable(c *gin.Context) {
	variantID, ok := pathID(c, "variant_id")
	if !ok {
		return
	}

	available, err := h.inventory.GetAvailable(c.Request.Context(), variantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"variant_id": variantID, "available": available})
}

type reserveStockRequest struct {
	VariantID     int64  `json:"variant_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	ReservationID string `json:"reservation_id" binding:"required"`
}

func (h *Handler) reserveStock(c *gin.Context) {
	var req reserveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	reservation, err := h.inventory.ReserveStock(c.Request.Context(), req.VariantID, req.Quantity, req.ReservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, reservation)
}

func (h *Handler) getReservation(c *gin.Context) {
	reservation, err := h.inventory.GetReservation(c.Request.Context(), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *Handler) releaseStock(c *gin.Context) {
	reservationID := c.Param("reservation_id")
	if err := h.inventory.ReleaseStock(c.Request.Context(), reservationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.ReservationStatusReleased})
}

func (h *Handler) commitStock(c *gin.Context) {
	reservationID := c.Param("reservation_id")
	if err := h.inventory.CommitStock(c.Request.Context(), reservationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.ReservationStatusCommitted})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
