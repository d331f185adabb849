package wire

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DecodeJSON validates a format=json response envelope and returns its
// "response" object. The envelope must carry response.success set to true
// (as a string or boolean); failures use the same kinds as DecodeKeypair.
func DecodeJSON(raw string) (gjson.Result, error) {
	if strings.TrimSpace(raw) == "" {
		return gjson.Result{}, newDecodeError(KindEmptyResponse, "")
	}
	if !gjson.Valid(raw) {
		return gjson.Result{}, newDecodeError(KindMalformedLine, "response is not valid JSON")
	}

	response := gjson.Get(raw, "response")
	if !response.Exists() {
		return gjson.Result{}, newDecodeError(KindNoSuccessMarker, "missing response object")
	}
	success := response.Get(SuccessKey)
	if !success.Exists() {
		return gjson.Result{}, newDecodeError(KindNoSuccessMarker, "")
	}
	if success.String() != "true" {
		message := response.Get(MessageKey).String()
		if message == "" {
			message = genericFailureMessage
		}
		return gjson.Result{}, newDecodeError(KindExplicitFailure, message)
	}
	return response, nil
}
