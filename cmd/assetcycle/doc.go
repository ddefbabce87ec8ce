// Command assetcycle manages the creative assets of Google Ads App campaigns.
//
// The analyze command classifies every live asset, stores the proposed
// changes, and applies the AUTO ones. The execute command sweeps approved
// changes. Reviewers decide PENDING changes with `changes approve|reject` or
// through the workbook written by `review export` and read by `review import`.
// Every command reads the same config.toml; run `assetcycle config init` to
// create one.
package main
