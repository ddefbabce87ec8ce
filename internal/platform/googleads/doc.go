// Package googleads implements the platform interfaces against the Google Ads
// REST API.
//
// Reads go through GAQL searches (googleAds:search); collection writes use
// ads:mutate with an update mask naming exactly one app_ad field; new
// creatives are registered through assets:mutate. Every request is paced by a
// token-bucket limiter and authenticated with an OAuth2 refresh token. HTTP
// 408/429/5xx responses and transport timeouts are retried with exponential
// backoff; exhaustion surfaces as platform.ErrTransient.
package googleads
