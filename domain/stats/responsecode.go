// Package stats provides response-code grouping for traffic accounting.
// All functions are pure.
package stats

import "strconv"

// tracked exact status codes; anything else only counts toward its class
// group.
var trackedCodes = map[int]bool{
	200: true, 201: true, 202: true, 204: true,
	301: true, 302: true, 304: true,
	400: true, 401: true, 403: true, 404: true, 409: true, 422: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// CodeGroups returns the accounting keys for a response code: its class
// group ("2XX".."5XX") plus the exact code when it is individually tracked.
// Malformed or out-of-range input yields no keys rather than an error, to
// keep accounting resilient to bad upstream data.
func CodeGroups(code string) []string {
	n, err := strconv.Atoi(code)
	if err != nil {
		return nil
	}
	return codeGroups(n)
}

// CodeGroupsInt is CodeGroups for callers that already hold a numeric code.
func CodeGroupsInt(code int) []string {
	return codeGroups(code)
}

func codeGroups(code int) []string {
	if code < 100 || code > 599 {
		return nil
	}
	group := strconv.Itoa(code/100) + "XX"
	if trackedCodes[code] {
		return []string{strconv.Itoa(code), group}
	}
	return []string{group}
}
