// Package residents owns resident records and their validation workflow.
//
// A record is submitted PENDING, then approved or rejected once by staff.
// Rejected records go back to PENDING when their owner edits them. Approved
// records are frozen on the ordinary edit path; only an administrator can
// change them, through ForceUpdate.
//
// All edit entry points go through CanEdit.
package residents
