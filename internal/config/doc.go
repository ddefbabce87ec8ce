// Package config loads, normalizes, and validates assetcycle configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours GOOGLE_ADS_* environment
// overrides for API credentials. The Config type centralizes the rotation
// policy (label sets, impression threshold, per-type asset limits) along with
// platform transport settings, so the decision engine and executor receive a
// single sanitized view.
//
// Always obtain settings through this package so downstream code sees
// uppercase label names, canonical asset type keys, and clear validation
// errors.
package config
