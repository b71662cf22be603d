package authx

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestParseRoles(t *testing.T) {
	claims := map[string]any{
		"roles": []any{RoleSales, RoleManager, RoleSales},
	}
	roles := parseRoles(claims)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", "aud", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
}

func TestAuthFromClaimsRejectsNonUUIDSubject(t *testing.T) {
	_, err := authFromClaims(jwt.MapClaims{"sub": "not-a-uuid"})
	if err == nil {
		t.Fatalf("expected error for non-uuid subject")
	}
}

func TestHasAnyRole(t *testing.T) {
	auth := AuthContext{UserID: uuid.New(), Roles: []string{RoleCompliance}}
	if !auth.HasAnyRole(RoleManager, RoleCompliance) {
		t.Fatalf("expected compliance role to match")
	}
	if auth.HasAnyRole(RoleAdmin) {
		t.Fatalf("did not expect admin role")
	}
}
