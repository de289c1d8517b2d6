package middleware

import (
	"tiketi/internal/domain"

	"github.com/gin-gonic/gin"
)

// StaffOnly admits back-office users (staff and admins).
func StaffOnly() gin.HandlerFunc {
	return RequireRole(domain.RoleStaff, domain.RoleAdmin)
}
