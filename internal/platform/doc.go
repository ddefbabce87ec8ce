// Package platform defines the narrow interfaces the engine consumes from the
// ad platform: a performance query, a whole-collection read and write per ad,
// a campaign status check, and asset creation. The Google Ads REST adapter in
// the googleads subpackage implements them; tests use an in-memory fake.
package platform
