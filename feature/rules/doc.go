// Package rules holds named deletion policies and the engine that evaluates
// them against the catalog. A rule is a set of toggleable filters plus a
// per-source deletion strategy; running one feeds its matches into the
// deletion workflow as pending requests, never as direct deletes.
package rules
