package domain

import "strings"

// Plan is a purchasable subscription plan. The catalog is owned elsewhere;
// the payment flow only reads it.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`    // VND
	Duration    int      `json:"duration"` // months
	Features    []string `json:"features,omitempty"`
	IsActive    bool     `json:"isActive"`
}

// Role names granted by the auth service after a completed purchase.
const (
	RolePremium = "user_premium"
	RoleVIP     = "user_vip"
)

// GrantedRole returns the role a completed purchase of p upgrades the user to.
func (p *Plan) GrantedRole() string {
	if strings.EqualFold(strings.TrimSpace(p.Name), "vip") {
		return RoleVIP
	}
	return RolePremium
}
