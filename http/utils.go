// SPDX-License-Identifier: Apache-2.0

package http

import (
	"net/http"
	"strings"
)

const negotiateScheme = "Negotiate"

// parseAuthzHeader returns the lower-cased scheme and the credentials of an Authorization
// header.
func parseAuthzHeader(headers http.Header) (string, string) {
	header := headers.Get("Authorization")
	if header == "" {
		return "", ""
	}

	scheme, creds, ok := strings.Cut(header, " ")
	if !ok {
		return strings.ToLower(header), ""
	}

	return strings.ToLower(scheme), strings.TrimSpace(creds)
}

// negotiateChallenge is one Negotiate challenge from a WWW-Authenticate header.  Token is empty
// for the bare challenge that starts authentication.
type negotiateChallenge struct {
	Token string
}

// negotiateChallenges returns the Negotiate challenges of a response, in header order.
//
// A header may carry several comma separated challenges, and other schemes may put commas in
// quoted parameters.  Negotiate takes no parameters and its token68 has no commas, so any
// comma separated segment that starts with the scheme name is a Negotiate challenge.
func negotiateChallenges(headers http.Header) []negotiateChallenge {
	var out []negotiateChallenge

	for _, value := range headers.Values("WWW-Authenticate") {
		for _, segment := range strings.Split(value, ",") {
			fields := strings.Fields(segment)
			if len(fields) == 0 || !strings.EqualFold(fields[0], negotiateScheme) {
				continue
			}

			var ch negotiateChallenge
			if len(fields) > 1 {
				ch.Token = fields[1]
			}
			out = append(out, ch)
		}
	}

	return out
}
