package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthTokenRoundTrip(t *testing.T) {
	at := NewAuthToken("unit-test-secret")

	tokenString, err := at.GenerateToken("device-42")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if tokenString == "" {
		t.Fatal("expected non-empty token")
	}

	ok, deviceID, err := at.VerifyToken(tokenString)
	if err != nil {
		t.Fatalf("VerifyToken error: %v", err)
	}
	if !ok {
		t.Fatal("expected token to verify")
	}
	if deviceID != "device-42" {
		t.Fatalf("expected device-42, got %s", deviceID)
	}
}

func TestAuthTokenTampered(t *testing.T) {
	at := NewAuthToken("unit-test-secret")

	tokenString, err := at.GenerateToken("device-42")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	tampered := tokenString[:len(tokenString)-2] + "xx"
	if ok, _, err := at.VerifyToken(tampered); ok || err == nil {
		t.Fatal("expected tampered token to fail verification")
	}
}

func TestAuthTokenWrongSecret(t *testing.T) {
	tokenString, err := NewAuthToken("secret-a").GenerateToken("device-42")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if ok, _, err := NewAuthToken("secret-b").VerifyToken(tokenString); ok || err == nil {
		t.Fatal("expected verification with wrong secret to fail")
	}
}

func TestAuthTokenForeignIssuer(t *testing.T) {
	// 同密钥但iss不是本服务签发的token必须被拒绝
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"device_id": "device-42",
		"iss":       "some-other-service",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	})
	tokenString, err := foreign.SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("sign foreign token: %v", err)
	}

	if ok, _, err := NewAuthToken("unit-test-secret").VerifyToken(tokenString); ok || err == nil {
		t.Fatal("expected foreign issuer to fail verification")
	}
}

func TestAuthTokenEmptyDeviceID(t *testing.T) {
	if _, err := NewAuthToken("unit-test-secret").GenerateToken(""); err == nil {
		t.Fatal("expected empty device id to be rejected")
	}
}

func TestAuthTokenExpired(t *testing.T) {
	at := NewAuthToken("unit-test-secret").WithTTL(time.Millisecond)

	tokenString, err := at.GenerateToken("device-42")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	time.Sleep(1100 * time.Millisecond) // exp 精度为秒

	ok, _, err := at.VerifyToken(tokenString)
	if ok || err == nil {
		t.Fatal("expected expired token to fail")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got: %v", err)
	}
}
