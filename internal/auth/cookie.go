package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignSessionID はセッションIDにHMAC-SHA256署名を付与したCookie値を返す。
// 形式は "<セッションID>.<署名(hex)>"。
// Cookieの改ざんをDBアクセス前に検知するために使用する。
func SignSessionID(secret, sessionID string) string {
	return sessionID + "." + computeSignature(secret, sessionID)
}

// VerifySessionID は署名付きCookie値を検証し、セッションIDを取り出す。
// 形式不正または署名不一致の場合はfalseを返す。
func VerifySessionID(secret, cookieValue string) (string, bool) {
	sessionID, signature, found := strings.Cut(cookieValue, ".")
	if !found || sessionID == "" || signature == "" {
		return "", false
	}

	expected := computeSignature(secret, sessionID)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	return sessionID, true
}

func computeSignature(secret, sessionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}
