// Package oauth1 signs OneRoster requests with two-legged OAuth 1.0a
// (consumer key and secret, no token) using HMAC-SHA256.
//
// Every call to Sign produces a fresh timestamp and nonce, so a retried
// request must be signed again rather than reusing an earlier header.
//
// Example usage:
//
//	signer, err := oauth1.NewSigner(consumerKey, consumerSecret)
//	header, query, err := signer.Sign("GET", baseURL+"/orgs", url.Values{"limit": {"100"}})
//	req.Header.Set("Authorization", header)
//	req.URL.RawQuery = query.Encode()
//
// The signature base string follows the application/x-www-form-urlencoded
// escaping of url.QueryEscape (space becomes "+"), for the method, the base
// URL and the sorted parameter list alike. Tests pin the clock and nonce with
// WithClock and WithNonceSource to get reproducible signatures.
package oauth1
