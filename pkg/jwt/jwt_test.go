package jwt

import "testing"

func TestGenerateAndValidate(t *testing.T) {
	j := NewJWT([]byte("test-secret"), 3600)

	token, err := j.GenerateToken("identity-1", 4)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := j.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.IdentityID != "identity-1" || claims.TokenVersion != 4 {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWT([]byte("secret-a"), 3600)
	verifier := NewJWT([]byte("secret-b"), 3600)

	token, err := issuer.GenerateToken("identity-1", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret was accepted")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	j := NewJWT([]byte("test-secret"), -60)

	token, err := j.GenerateToken("identity-1", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := j.ValidateToken(token); err == nil {
		t.Fatal("expired token was accepted")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	j := NewJWT([]byte("test-secret"), 3600)
	if _, err := j.ValidateToken("not.a.token"); err == nil {
		t.Fatal("malformed token was accepted")
	}
}
