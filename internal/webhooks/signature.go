package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Sign returns the X-Signature header value for body sent at ts:
// "t=<unix>,v1=<hex hmac-sha256 of "<unix>.<body>">".
func Sign(secret string, ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + hex.EncodeToString(mac(secret, unix, body))
}

// Verify checks a header produced by Sign and rejects signatures older than
// tolerance. A zero tolerance skips the age check.
func Verify(secret, header string, body []byte, now time.Time, tolerance time.Duration) bool {
	var unix, sig string
	for _, part := range strings.Split(header, ",") {
		if v, ok := strings.CutPrefix(part, "t="); ok {
			unix = v
		} else if v, ok := strings.CutPrefix(part, "v1="); ok {
			sig = v
		}
	}
	sec, err := strconv.ParseInt(unix, 10, 64)
	if err != nil || sig == "" {
		return false
	}
	if tolerance > 0 && now.Sub(time.Unix(sec, 0)) > tolerance {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, unix, body), got)
}

func mac(secret, unix string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(unix))
	m.Write([]byte("."))
	m.Write(body)
	return m.Sum(nil)
}
