package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

const paramsKey = "twilioParams"

// TwilioSignature computes the X-Twilio-Signature value for a form POST.
func TwilioSignature(authToken, fullURL string, params map[string]string) string {
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// validateTwilioSignature verifies Twilio request signatures.
func validateTwilioSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	expected := TwilioSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// TwilioAuth parses the webhook form into params and validates the
// signature header. publicBaseURL is the externally visible origin
// (Twilio signs the URL it called, not the one behind a proxy); when empty
// https://<Host> is assumed. Without an authToken every webhook is refused.
func TwilioAuth(authToken, publicBaseURL string) echo.MiddlewareFunc {
	publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	if authToken == "" {
		log.Println("twilio: TWILIO_AUTH_TOKEN not set, webhooks will be rejected")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/twilio/") {
				return next(c)
			}
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			bodyBytes, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			formData, err := url.ParseQuery(string(bodyBytes))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string)
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			base := publicBaseURL
			if base == "" {
				base = "https://" + c.Request().Host
			}
			requestURL := base + c.Request().URL.RequestURI()
			signature := c.Request().Header.Get("X-Twilio-Signature")
			if !validateTwilioSignature(authToken, signature, requestURL, params) {
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set(paramsKey, params)
			return next(c)
		}
	}
}

// TwilioParams returns the form fields stored by TwilioAuth.
func TwilioParams(c echo.Context) (map[string]string, bool) {
	params, ok := c.Get(paramsKey).(map[string]string)
	return params, ok
}
