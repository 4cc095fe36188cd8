// Package deletion implements the two-phase deletion workflow: rules propose,
// an operator approves or cancels, and the executor carries approved requests
// out against Radarr, Sonarr or the filesystem.
//
// Requests snapshot the entry and rule at proposal time so later edits never
// change what an approval meant. Completed and failed requests are terminal;
// every execution outcome lands in the history table.
package deletion
