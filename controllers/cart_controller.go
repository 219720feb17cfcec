package controllers

import (
	"net/http"

	"github.com/Syed-Nuhad/automart/common/apperrors"
	"github.com/Syed-Nuhad/automart/database"
	"github.com/Syed-Nuhad/automart/middleware"
	"github.com/Syed-Nuhad/automart/models"
	"github.com/Syed-Nuhad/automart/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartController struct {
	Repo     *database.CartRepository
	Listings repository.ListingRepository
	Logger   *zap.Logger
}

func NewCartController(repo *database.CartRepository, listings repository.ListingRepository, logger *zap.Logger) *CartController {
	return &CartController{Repo: repo, Listings: listings, Logger: logger}
}

// GetCart returns the current cart for a user
func (cc *CartController) GetCart(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	cart, err := cc.Repo.GetCart(ctx, userID)
	if err != nil {
		cc.Logger.Error("Failed to load cart", zap.String("user_id", userID), zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	if cart == nil {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_amount": cart.TotalCents()})
}

// AddItem puts a listing into the cart. Price and name come from the
// catalog, never from the request body, and each car appears at most once.
func (cc *CartController) AddItem(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req struct {
		ListingID string `json:"listing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	ctx := c.Request.Context()
	listing, err := cc.Listings.FindByID(ctx, listingID)
	if err != nil {
		apperrors.HandleError(c, apperrors.Wrap(apperrors.ErrNotFound, err))
		return
	}
	if listing.Status != models.ListingStatusAvailable {
		c.JSON(http.StatusConflict, gin.H{"error": "listing is no longer available"})
		return
	}

	cart, _ := cc.Repo.GetCart(ctx, userID)
	if cart == nil {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
	}

	for _, existing := range cart.Items {
		if existing.ProductID == listing.ID.String() {
			c.JSON(http.StatusOK, gin.H{"cart": cart, "total_amount": cart.TotalCents()})
			return
		}
	}

	cart.Items = append(cart.Items, models.CartItem{
		ProductID:  listing.ID.String(),
		Name:       listing.LineName(),
		UnitAmount: listing.PriceCents,
		Quantity:   1,
	})

	if err := cc.Repo.SaveCart(ctx, cart); err != nil {
		cc.Logger.Error("Failed to save cart", zap.String("user_id", userID), zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_amount": cart.TotalCents()})
}

// RemoveItem removes a specific listing from the cart
func (cc *CartController) RemoveItem(c *gin.Context) {
	userID := middleware.GetUserID(c)
	listingID := c.Param("listing_id")
	ctx := c.Request.Context()

	cart, _ := cc.Repo.GetCart(ctx, userID)
	if cart == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cart not found"})
		return
	}

	newItems := []models.CartItem{}
	for _, item := range cart.Items {
		if item.ProductID != listingID {
			newItems = append(newItems, item)
		}
	}
	cart.Items = newItems

	if err := cc.Repo.SaveCart(ctx, cart); err != nil {
		cc.Logger.Error("Failed to update cart", zap.String("user_id", userID), zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_amount": cart.TotalCents()})
}

// ClearCart removes all items from the cart
func (cc *CartController) ClearCart(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := cc.Repo.DeleteCart(c.Request.Context(), userID); err != nil {
		cc.Logger.Error("Failed to clear cart", zap.String("user_id", userID), zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}
