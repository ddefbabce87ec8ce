// Package review moves change requests through a spreadsheet so reviewers can
// approve or reject them without the CLI.
//
// Export writes one row per change. Import reads the workbook back and
// applies only the Status and Reviewer Note columns, and only for changes
// still PENDING in the store; every other cell is informational.
package review
