package wire

import "strings"

const dumpSuccessToken = "SUCCESS"

// DecodeDump parses a dump response and returns everything after the status
// line verbatim.
func DecodeDump(raw string) (string, error) {
	if raw == "" {
		return "", newDecodeError(KindEmptyResponse, "")
	}

	status, payload, _ := strings.Cut(raw, "\n")
	status = strings.TrimSuffix(status, "\r")
	if strings.Contains(status, dumpSuccessToken) {
		return payload, nil
	}

	message := strings.TrimSpace(status)
	if reason, _, _ := strings.Cut(payload, "\n"); strings.TrimSpace(reason) != "" {
		message = strings.TrimSpace(reason)
	}
	if message == "" {
		message = "failure was returned from the data dump"
	}
	return "", newDecodeError(KindExplicitFailure, message)
}
