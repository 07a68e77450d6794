// Package workspace stores each user's project tree on disk.
//
// Every project is a directory named by its project id directly below the
// workspace root. The Store resolves project-relative paths to absolute host
// paths (rejecting anything that would escape the project), creates projects
// from per-language templates, and reads, saves, lists and archives files.
//
// The filesystem is an afero.Fs so tests run against an in-memory tree; the
// server uses the host filesystem because the execution engine bind-mounts
// the resolved project directory into containers.
package workspace
