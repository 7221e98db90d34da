package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/snapbite/mealscan/internal/common"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) GetMeal(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	meal, err := h.Repo.GetMeal(c.Request.Context(), c.Param("id"))
	if err != nil || meal.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40402, "meal not found")
		return
	}

	common.OK(c, meal)
}

func (h *Handler) ListMeals(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	meals, err := h.Repo.ListMeals(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list meals")
		return
	}

	common.OK(c, gin.H{"meals": meals})
}

// DeleteMeal marks the meal cancelled. An in-flight scan observes the status
// at the start of processing and terminates as cancelled.
func (h *Handler) DeleteMeal(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Repo.CancelMeal(c.Request.Context(), uid, c.Param("id")); err != nil {
		common.Fail(c, http.StatusNotFound, 40402, "meal not found")
		return
	}

	common.OK(c, gin.H{"cancelled": true})
}

// GetIngredient is the thumbnail read-back used by clients polling for
// generated images. A missing image_url means pending or failed, never an
// error to retry automatically.
func (h *Handler) GetIngredient(c *gin.Context) {
	ing, err := h.Repo.GetIngredient(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.Fail(c, http.StatusNotFound, 40403, "ingredient not found")
		return
	}

	common.OK(c, gin.H{
		"id":           ing.ID,
		"display_name": ing.DisplayName,
		"slug":         ing.Slug,
		"image_url":    ing.ImageURL,
		"image_status": ing.ImageStatus,
	})
}
